//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const e2eSchema = `
CREATE TABLE stations (
  code        TEXT PRIMARY KEY,
  name        TEXT NOT NULL,
  latitude    DOUBLE PRECISION,
  longitude   DOUBLE PRECISION,
  region      TEXT NOT NULL DEFAULT '',
  commune     TEXT NOT NULL DEFAULT '',
  watershed   TEXT NOT NULL DEFAULT '',
  zone        TEXT NOT NULL DEFAULT '',
  elevation   DOUBLE PRECISION,
  institution TEXT NOT NULL
);

CREATE TABLE measurements (
  station_code   TEXT NOT NULL REFERENCES stations(code),
  ts             TIMESTAMPTZ NOT NULL,
  temperature    DOUBLE PRECISION,
  humidity       DOUBLE PRECISION,
  pressure       DOUBLE PRECISION,
  wind_direction DOUBLE PRECISION,
  wind_speed     DOUBLE PRECISION,
  precipitation  DOUBLE PRECISION,
  radiation      DOUBLE PRECISION,
  PRIMARY KEY (station_code, ts)
);
`

func TestSmoke_PostgresBackend(t *testing.T) {
	repoRoot := repoRootPath(t)

	pgHost, pgPort := startPostgres(t)
	seedDatabase(t, pgHost, pgPort)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,
		"DB_DRIVER=postgres",
		"DB_HOST="+pgHost,
		"DB_PORT="+pgPort,
		"DB_NAME=monitoring",
		"DB_USER=postgres",
		"DB_PASSWORD=postgres",
		"DB_SSLMODE=disable",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	base := "http://" + addr

	waitForOK(t, client, base+"/healthz", 10*time.Second)

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body.status=%q want=%q", body["status"], "ok")
	}

	stationsResp, err := client.Get(base + "/api/v1/stations")
	if err != nil {
		t.Fatalf("GET /api/v1/stations: %v", err)
	}
	defer stationsResp.Body.Close()

	if stationsResp.StatusCode != http.StatusOK {
		t.Fatalf("stations status=%d want=%d", stationsResp.StatusCode, http.StatusOK)
	}
	var stations struct {
		Stations []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"stations"`
	}
	if err := json.NewDecoder(stationsResp.Body).Decode(&stations); err != nil {
		t.Fatalf("decode stations: %v", err)
	}
	if len(stations.Stations) != 1 || stations.Stations[0].Code != "330021" {
		t.Fatalf("stations=%+v want one station 330021", stations.Stations)
	}

	stopServer(t, cmd)
}

func startPostgres(t *testing.T) (host, port string) {
	t.Helper()

	ctx := context.Background()
	pgPort := nat.Port("5432/tcp")

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{string(pgPort)},
		Env: map[string]string{
			"POSTGRES_DB":       "monitoring",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(pgPort),
		).WithStartupTimeoutDefault(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err = c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, pgPort)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return host, mapped.Port()
}

func seedDatabase(t *testing.T, host, port string) {
	t.Helper()

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/monitoring?sslmode=disable", host, port)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(e2eSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO stations (code, name, latitude, longitude, region, institution)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		"330021", "Pudahuel", -33.44, -70.79, "Metropolitana", "DMC",
	); err != nil {
		t.Fatalf("seed station: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO measurements (station_code, ts, temperature, humidity)
		 VALUES ($1, $2, $3, $4)`,
		"330021", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 18.4, 55.0,
	); err != nil {
		t.Fatalf("seed measurement: %v", err)
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "station-dashboard")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
