package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeRepository struct {
	t        *testing.T
	handlers map[string]func(params []any) (any, *RPCError)
}

func (f *fakeRepository) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req RPCRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		res := map[string]any{"id": req.ID}
		handler, ok := f.handlers[req.Method]
		if !ok {
			res["error"] = &RPCError{Code: 400, Message: "unknown method " + req.Method}
		} else {
			result, rpcErr := handler(req.Params)
			if rpcErr != nil {
				res["error"] = rpcErr
			} else {
				res["result"] = result
			}
		}
		if err := conn.WriteJSON(res); err != nil {
			return
		}
	}
}

func dialFake(t *testing.T, handlers map[string]func(params []any) (any, *RPCError)) (*RPCClient, func()) {
	srv := httptest.NewServer(&fakeRepository{t: t, handlers: handlers})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client, err := Dial(context.Background(), url, 5*time.Second, nil)
	require.NoError(t, err)

	return client, func() {
		assert.NoError(t, client.Close())
		srv.Close()
	}
}

func TestRPCClientGetDocument(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, closeFn := dialFake(t, map[string]func([]any) (any, *RPCError){
		"getDocument": func(params []any) (any, *RPCError) {
			if params[0] != "DOC-1" || params[1] != true {
				return nil, &RPCError{Code: 400, Message: "bad params"}
			}
			return map[string]any{
				"versionSeriesId":   "abc",
				"identificatie":     "DOC-1",
				"begin_registratie": 1530101532000,
			}, nil
		},
	})
	defer closeFn()

	rec, err := client.GetDocument(context.Background(), "DOC-1", true, nil)
	require.NoError(t, err)

	assert.Equal(t, "abc", rec.String("versionSeriesId"))
	assert.Equal(t, json.Number("1530101532000"), rec["begin_registratie"])
}

func TestRPCClientMapsErrorCodes(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, closeFn := dialFake(t, map[string]func([]any) (any, *RPCError){
		"getDocument": func([]any) (any, *RPCError) {
			return nil, &RPCError{Code: CodeDocumentNotFound, Message: "no such document"}
		},
		"deleteDocument": func([]any) (any, *RPCError) {
			return nil, &RPCError{Code: CodeDocumentConflict, Message: "in use"}
		},
		"lockDocument": func([]any) (any, *RPCError) {
			return nil, &RPCError{Code: CodeDocumentLocked, Message: "checked out"}
		},
	})
	defer closeFn()

	ctx := context.Background()

	_, err := client.GetDocument(ctx, "missing", false, nil)
	assert.True(t, errors.Is(err, ErrDocumentNotFound))

	err = client.DeleteDocument(ctx, "abc")
	assert.True(t, errors.Is(err, ErrDocumentConflict))
	assert.False(t, errors.Is(err, ErrDocumentNotFound))

	err = client.LockDocument(ctx, "abc", "token")
	assert.True(t, errors.Is(err, ErrDocumentLocked))

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(CodeDocumentLocked), rpcErr.Code)
}

func TestRPCClientListAndVersions(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, closeFn := dialFake(t, map[string]func([]any) (any, *RPCError){
		"listDocuments": func(params []any) (any, *RPCError) {
			filters, _ := params[0].(map[string]any)
			return map[string]any{"results": []map[string]any{
				{"identificatie": filters["titel"]},
				{"identificatie": "second"},
			}}, nil
		},
		"getAllVersions": func([]any) (any, *RPCError) {
			return []map[string]any{
				{"label": "1.0", "record": map[string]any{"versie": "1.0"}},
				{"label": "1.1", "record": map[string]any{"versie": "1.1"}},
			}, nil
		},
	})
	defer closeFn()

	ctx := context.Background()

	res, err := client.ListDocuments(ctx, map[string]any{"titel": "first"})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "first", res.Results[0].String("identificatie"))

	versions, err := client.GetAllVersions(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0", versions[0].Label)
	assert.Equal(t, "1.1", versions[1].Record.String("versie"))
}

func TestRPCClientCallAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, closeFn := dialFake(t, map[string]func([]any) (any, *RPCError){})
	closeFn()

	err := client.DeleteDocument(context.Background(), "abc")
	assert.Error(t, err)
}
