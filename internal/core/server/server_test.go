package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/scorekeeper/internal/core/api"
	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/rules"
)

const scoreText = `score_name: Elderly
variables:
  age: int
rules:
  - if: age >= 65
    add: 1
`

func newService(t *testing.T) *api.Service {
	t.Helper()
	svc, err := api.NewService(rules.NewEngine(zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func newAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	conn, err := db.Open(db.MemoryURL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(conn))
	q, err := db.LoadQueries(conn)
	require.NoError(t, err)
	return auth.NewAuthenticator(map[string][]byte{"0123456789abcdef0123456789abcdef": []byte(strings.Repeat("s", 32))}, q)
}

// startBufconn serves srv in memory and returns a connected client.
func startBufconn(t *testing.T, srv *GRPCServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewGRPCServer(t *testing.T) {
	_, err := NewGRPCServer(config.GRPCConfig{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestGRPCServer_Scoring(t *testing.T) {
	srv, err := NewGRPCServer(config.GRPCConfig{}, newService(t), nil, zerolog.Nop())
	require.NoError(t, err)
	client := api.NewScoringAPIClient(startBufconn(t, srv))
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]any{"text": scoreText})
	require.NoError(t, err)
	doc, err := client.Parse(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Elderly", doc.Fields["score_name"].GetStringValue())

	calc, err := structpb.NewStruct(map[string]any{"ast": doc.AsMap(), "inputs": map[string]any{"age": 70}})
	require.NoError(t, err)
	res, err := client.Calculate(ctx, calc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Fields["score"].GetNumberValue())

	empty, err := structpb.NewStruct(map[string]any{"text": ""})
	require.NoError(t, err)
	_, err = client.Parse(ctx, empty)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

// Formula names sort against their dependency order.
const chainedFormulaText = `score_name: Chained
variables:
  x: int
formulas:
  z_base: x + 1
  a_double: z_base * 2
rules:
  - if: a_double >= 4
    add: 1
`

func TestGRPCServer_FormulaOrder(t *testing.T) {
	srv, err := NewGRPCServer(config.GRPCConfig{}, newService(t), nil, zerolog.Nop())
	require.NoError(t, err)
	client := api.NewScoringAPIClient(startBufconn(t, srv))
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]any{"text": chainedFormulaText})
	require.NoError(t, err)
	doc, err := client.Parse(ctx, req)
	require.NoError(t, err)

	formulas := doc.Fields["formulas"].GetListValue().GetValues()
	require.Len(t, formulas, 2)
	assert.Equal(t, "z_base", formulas[0].GetStructValue().Fields["name"].GetStringValue())
	assert.Equal(t, "a_double", formulas[1].GetStructValue().Fields["name"].GetStringValue())

	calc, err := structpb.NewStruct(map[string]any{"ast": doc.AsMap(), "inputs": map[string]any{"x": 1}})
	require.NoError(t, err)
	res, err := client.Calculate(ctx, calc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Fields["score"].GetNumberValue())
	computed := res.Fields["computed"].GetStructValue().Fields
	assert.Equal(t, 2.0, computed["z_base"].GetNumberValue())
	assert.Equal(t, 4.0, computed["a_double"].GetNumberValue())
	assert.Nil(t, res.Fields["warnings"].GetListValue().GetValues())

	// An object has already lost its key order inside a Struct.
	unordered, err := structpb.NewStruct(map[string]any{
		"ast": map[string]any{
			"type":       "score_with_formula",
			"score_name": "Chained",
			"formulas":   map[string]any{"z_base": "x + 1", "a_double": "z_base * 2"},
		},
		"inputs": map[string]any{"x": 1},
	})
	require.NoError(t, err)
	_, err = client.Calculate(ctx, unordered)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCServer_Auth(t *testing.T) {
	a := newAuthenticator(t)
	srv, err := NewGRPCServer(config.GRPCConfig{}, newService(t), a, zerolog.Nop())
	require.NoError(t, err)
	conn := startBufconn(t, srv)
	client := api.NewScoringAPIClient(conn)
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]any{"text": scoreText})
	require.NoError(t, err)

	_, err = client.Parse(ctx, req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, key, err := a.CreateKey(ctx, "grpc")
	require.NoError(t, err)
	authed := metadata.AppendToOutgoingContext(ctx, auth.HeaderName, key)
	_, err = client.Parse(authed, req)
	assert.NoError(t, err)

	// Health checks skip authentication.
	hc, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ScoringAPIServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, hc.Status)
}

func TestHTTPServer_Lifecycle(t *testing.T) {
	_, err := NewHTTPServer(config.HTTPConfig{}, nil, zerolog.Nop())
	assert.Error(t, err)

	srv, err := NewHTTPServer(config.HTTPConfig{}, newService(t).Handler(), zerolog.Nop())
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	url := fmt.Sprintf("http://%s/healthz", lis.Addr())
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
