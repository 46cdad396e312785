package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voiceenhance/pkg/client"
	"github.com/xaionaro-go/voiceenhance/pkg/config"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression/implementations/voicefilter"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func randomChunk(n int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	result := make([]float32, n)
	for i := range result {
		result[i] = float32(rng.Float64()*2-1) * 0.3
	}
	return result
}

func toneChunk(n int, freq float64, offset int) []float32 {
	result := make([]float32, n)
	for i := range result {
		result[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(offset+i)/44100))
	}
	return result
}

type testServer struct {
	*Server
	httpServer *httptest.Server
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	if cfg == nil {
		cfg = config.Default()
	}
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: s, httpServer: ts}
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.httpServer.URL, "http") + PathProcessAudio
}

func (ts *testServer) dial(t *testing.T) *client.Client {
	c, err := client.Dial(context.Background(), ts.url())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func timeoutCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func expectedOutputs(t *testing.T, chunks [][]float32) [][]float32 {
	session, err := voicefilter.New(voicefilter.DefaultConfig())
	require.NoError(t, err)
	var result [][]float32
	for _, chunk := range chunks {
		out, err := session.Process(context.Background(), chunk)
		require.NoError(t, err)
		result = append(result, out)
	}
	return result
}

func requireCloseCode(t *testing.T, err error, code int) *websocket.CloseError {
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "%v", err)
	require.Equal(t, code, closeErr.Code, closeErr.Text)
	return closeErr
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Filter.LowCutoff = 5000
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.httpServer.URL + PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0.0, body["sessions"])
	assert.Contains(t, body, "timestamp")
}

func TestProcessAudioResponsesInOrder(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t)
	ctx := timeoutCtx(t)

	var chunks [][]float32
	for i := 0; i < 6; i++ {
		chunks = append(chunks, randomChunk(1024, int64(i)))
	}
	expected := expectedOutputs(t, chunks)

	for i, chunk := range chunks {
		out, err := c.Enhance(ctx, chunk)
		require.NoError(t, err)
		require.Equal(t, expected[i], out, "chunk %d", i)
	}

	stats := ts.Stats()
	assert.Equal(t, uint64(6), stats.ProcessedChunks)
	assert.Equal(t, uint64(6*4096), stats.BytesReceived)
	assert.Equal(t, uint64(6*4096), stats.BytesSent)
}

func TestProcessAudioSilence(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t)
	ctx := timeoutCtx(t)

	zeros := make([]float32, 1024)
	for i := 0; i < 4; i++ {
		out, err := c.Enhance(ctx, zeros)
		require.NoError(t, err)
		require.Equal(t, zeros, out)
	}
}

func TestProcessAudioRejections(t *testing.T) {
	t.Run("length_mismatch", func(t *testing.T) {
		ts := newTestServer(t, nil)
		c := ts.dial(t)
		ctx := timeoutCtx(t)

		_, err := c.Enhance(ctx, randomChunk(1024, 1))
		require.NoError(t, err)
		_, err = c.Enhance(ctx, randomChunk(512, 2))
		closeErr := requireCloseCode(t, err, websocket.ClosePolicyViolation)
		assert.Contains(t, closeErr.Text, "1024")
	})

	t.Run("malformed", func(t *testing.T) {
		ts := newTestServer(t, nil)
		c := ts.dial(t)
		_, err := c.EnhanceRaw(timeoutCtx(t), []byte{1, 2, 3})
		requireCloseCode(t, err, websocket.CloseInvalidFramePayloadData)
	})

	t.Run("empty", func(t *testing.T) {
		ts := newTestServer(t, nil)
		c := ts.dial(t)
		_, err := c.EnhanceRaw(timeoutCtx(t), nil)
		requireCloseCode(t, err, websocket.CloseInvalidFramePayloadData)
	})

	t.Run("text_message", func(t *testing.T) {
		ts := newTestServer(t, nil)
		c := ts.dial(t)
		ctx := timeoutCtx(t)
		require.NoError(t, c.SendText(ctx, "hello"))
		closeErr, err := c.ReadClose(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.CloseUnsupportedData, closeErr.Code)
		assert.Equal(t, "unsupported data", closeErr.Text)
	})

	t.Run("too_large", func(t *testing.T) {
		cfg := config.Default()
		cfg.Server.MaxMessageSize = 1024
		ts := newTestServer(t, cfg)
		c := ts.dial(t)
		_, err := c.Enhance(timeoutCtx(t), randomChunk(1024, 1))
		requireCloseCode(t, err, websocket.CloseMessageTooBig)
	})

	t.Run("other_sessions_unaffected", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ctx := timeoutCtx(t)
		good := ts.dial(t)
		bad := ts.dial(t)

		chunks := [][]float32{randomChunk(1024, 1), randomChunk(1024, 2)}
		expected := expectedOutputs(t, chunks)

		out, err := good.Enhance(ctx, chunks[0])
		require.NoError(t, err)
		require.Equal(t, expected[0], out)

		_, err = bad.EnhanceRaw(ctx, []byte{1})
		require.Error(t, err)

		out, err = good.Enhance(ctx, chunks[1])
		require.NoError(t, err)
		require.Equal(t, expected[1], out)
	})
}

func TestProcessAudioConcurrentSessions(t *testing.T) {
	ts := newTestServer(t, nil)

	const clients = 4
	var wg sync.WaitGroup
	for idx := 0; idx < clients; idx++ {
		var chunks [][]float32
		for i := 0; i < 5; i++ {
			if idx%2 == 0 {
				chunks = append(chunks, randomChunk(1024, int64(idx*100+i)))
			} else {
				chunks = append(chunks, toneChunk(1024, 300*float64(idx), i*1024))
			}
		}
		expected := expectedOutputs(t, chunks)
		c := ts.dial(t)

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for i, chunk := range chunks {
				out, err := c.Enhance(ctx, chunk)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, expected[i], out, "client %d, chunk %d", idx, i)
			}
		}(idx)
	}
	wg.Wait()

	assert.Equal(t, uint64(clients), ts.Stats().TotalSessions)
}

func TestSessionCountReleased(t *testing.T) {
	ts := newTestServer(t, nil)
	c, err := client.Dial(context.Background(), ts.url())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ts.Stats().ActiveSessions == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		return ts.Stats().ActiveSessions == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServeShutdown(t *testing.T) {
	s, err := New(context.Background(), config.Default())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, listener)
	}()

	c, err := client.Dial(timeoutCtx(t), "ws://"+listener.Addr().String()+PathProcessAudio)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Enhance(timeoutCtx(t), randomChunk(256, 1))
	require.NoError(t, err)

	cancel()
	closeErr, err := c.ReadClose(timeoutCtx(t))
	require.NoError(t, err)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestCloseCode(t *testing.T) {
	assert.Equal(t, websocket.CloseInvalidFramePayloadData, closeCode(voicefilter.ErrMalformedChunk{Length: 3}))
	assert.Equal(t, websocket.ClosePolicyViolation, closeCode(voicefilter.ErrSessionTerminated{Cause: errors.New("closed")}))
	assert.Equal(t, websocket.CloseGoingAway, closeCode(context.Canceled))
	assert.Equal(t, websocket.CloseInternalServerErr, closeCode(errors.New("unexpected")))
}
