package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nimbus/connector"
	"github.com/ceyewan/nimbus/store"
	"github.com/ceyewan/nimbus/testkit"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	conn := testkit.NewSQLiteConnector(t)

	items, err := store.New(conn)
	require.NoError(t, err)
	require.NoError(t, items.EnsureSchema(context.Background()))

	srv, err := New(&Config{Mode: gin.TestMode}, items, conn)
	require.NoError(t, err)
	return srv
}

func newUnavailableServer(t *testing.T) *Server {
	t.Helper()

	conn, err := connector.NewPostgreSQL(&connector.PostgreSQLConfig{
		Host:     "127.0.0.1",
		Port:     1,
		Username: "postgres",
		Password: "postgres",
		Database: "appdb",
		SSLMode:  "disable",
	})
	require.NoError(t, err)

	items, err := store.New(conn)
	require.NoError(t, err)

	srv, err := New(&Config{Mode: gin.TestMode}, items, conn)
	require.NoError(t, err)
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "api-service", resp["service"])
	assert.NotEmpty(t, resp["timestamp"])
}

func TestReady(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodGet, "/ready", "")

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp["status"])
	assert.Equal(t, "connected", resp["database"])
}

// TestReadyLazyConnect 进程启动时没连上数据库，/ready 自行建立连接后转绿
func TestReadyLazyConnect(t *testing.T) {
	conn, err := connector.NewSQLite(&connector.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	items, err := store.New(conn)
	require.NoError(t, err)

	// 不调用 Connect，模拟数据库晚于进程就绪
	srv, err := New(&Config{Mode: gin.TestMode}, items, conn)
	require.NoError(t, err)

	w := doRequest(srv, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp["database"])
}

func TestReadyDatabaseDown(t *testing.T) {
	w := doRequest(newUnavailableServer(t), http.MethodGet, "/ready", "")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not ready", resp["status"])
	assert.Equal(t, "disconnected", resp["database"])
}

func TestItemsCRUD(t *testing.T) {
	srv := newTestServer(t)

	// 初始为空
	w := doRequest(srv, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Items []store.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Empty(t, listResp.Items)

	// 创建
	w = doRequest(srv, http.MethodPost, "/api/items", `{"name":"demo","description":"第一条"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID      uint   `json:"id"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Item created successfully", created.Message)

	// 列表包含新条目
	w = doRequest(srv, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Items, 1)
	assert.Equal(t, "demo", listResp.Items[0].Name)
	assert.Equal(t, "第一条", listResp.Items[0].Description)

	// 删除
	w = doRequest(srv, http.MethodDelete, fmt.Sprintf("/api/items/%d", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	// 再次删除 404
	w = doRequest(srv, http.MethodDelete, fmt.Sprintf("/api/items/%d", created.ID), "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListItemsOrdering(t *testing.T) {
	srv := newTestServer(t)

	for _, name := range []string{"first", "second", "third"} {
		w := doRequest(srv, http.MethodPost, "/api/items", fmt.Sprintf(`{"name":%q}`, name))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doRequest(srv, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Items []store.Item `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Items, 3)
	// 新的在前
	assert.True(t, !listResp.Items[0].CreatedAt.Before(listResp.Items[2].CreatedAt))
}

func TestCreateItemValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "{not-json"},
		{"missing name", `{"description":"no name"}`},
		{"empty name", `{"name":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv, http.MethodPost, "/api/items", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Name is required", resp["error"])
		})
	}
}

func TestDeleteItemInvalidID(t *testing.T) {
	w := doRequest(newTestServer(t), http.MethodDelete, "/api/items/not-a-number", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDatabaseUnavailableReturns503(t *testing.T) {
	srv := newUnavailableServer(t)

	w := doRequest(srv, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Database unavailable", resp["error"])

	w = doRequest(srv, http.MethodPost, "/api/items", `{"name":"demo"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(srv, http.MethodDelete, "/api/items/1", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestMetricsEndpoint /metrics 返回 200 和非空指标输出
func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	// 先产生一些流量
	doRequest(srv, http.MethodGet, "/api/items", "")

	w := doRequest(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

// TestMetricsEndpointDatabaseDown 数据库不可用时 /metrics 依然输出指标
func TestMetricsEndpointDatabaseDown(t *testing.T) {
	w := doRequest(newUnavailableServer(t), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}
