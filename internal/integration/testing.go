package integration

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/parsascontentcorner/shelfsync/internal/app"
	"github.com/parsascontentcorner/shelfsync/internal/config"
	grpcserver "github.com/parsascontentcorner/shelfsync/internal/grpc"
	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/syncer"
	"github.com/parsascontentcorner/shelfsync/internal/testutil"
)

// harness runs the wired application against a fake Discogs API
type harness struct {
	app     *app.App
	cfg     *config.Config
	discogs *testutil.FakeDiscogs
	api     *httptest.Server
}

// newHarness builds the app on the in-memory store unless an option
// supplies a database. configure may adjust the config before wiring.
func newHarness(t *testing.T, configure func(*config.Config), opts ...app.Option) *harness {
	t.Helper()

	fake := testutil.NewFakeDiscogs()
	t.Cleanup(fake.Close)

	cfg := testutil.GenerateTestConfig(t.TempDir())
	if configure != nil {
		configure(cfg)
	}

	opts = append([]app.Option{
		app.WithSourceURL(models.ServiceDiscogs, fake.URL()),
		app.WithRetryInterval(time.Millisecond),
	}, opts...)

	a, err := app.New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)

	api := httptest.NewServer(a.Handlers().Routes())
	t.Cleanup(func() {
		api.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})

	return &harness{app: a, cfg: cfg, discogs: fake, api: api}
}

// runDiscogs performs one blocking pass
func (h *harness) runDiscogs(t *testing.T) syncer.Summary {
	t.Helper()

	o, ok := h.app.Scheduler.Orchestrator(models.ServiceDiscogs)
	require.True(t, ok, "discogs should be configured")

	summary, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	return summary
}

// startGRPC serves the app's health service on a random port
func startGRPC(t *testing.T, health *grpcserver.HealthReporter) *grpc.ClientConn {
	t.Helper()

	srv, err := grpcserver.NewServer(health, "0", zap.NewNop())
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)

	conn, err := grpc.NewClient("127.0.0.1:"+port, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
