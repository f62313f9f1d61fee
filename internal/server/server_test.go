package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotsync/internal/shared"
	"golang.org/x/oauth2"
)

type stubExchanger struct {
	token *oauth2.Token
	err   error
	codes []string
}

func (s *stubExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	s.codes = append(s.codes, code)
	return s.token, s.err
}

func TestOAuthHandler(t *testing.T) {
	okToken := &oauth2.Token{AccessToken: "a", RefreshToken: "r"}

	tests := []struct {
		name      string
		query     string
		exchanger *stubExchanger
		status    int
		wantErr   error
	}{
		{name: "success", query: "state=s1&code=c1", exchanger: &stubExchanger{token: okToken}, status: http.StatusOK},
		{name: "denied", query: "error=access_denied&state=s1", exchanger: &stubExchanger{}, status: http.StatusBadRequest, wantErr: shared.ErrAuthDenied},
		{name: "provider error", query: "error=server_error&state=s1", exchanger: &stubExchanger{}, status: http.StatusBadRequest, wantErr: shared.ErrAuthProtocol},
		{name: "state mismatch", query: "state=other&code=c1", exchanger: &stubExchanger{token: okToken}, status: http.StatusBadRequest, wantErr: shared.ErrAuthProtocol},
		{name: "missing code", query: "state=s1", exchanger: &stubExchanger{}, status: http.StatusBadRequest, wantErr: shared.ErrAuthProtocol},
		{name: "exchange failure", query: "state=s1&code=c1", exchanger: &stubExchanger{err: errors.New("invalid_grant")}, status: http.StatusBadGateway, wantErr: shared.ErrAuthProtocol},
		{name: "no refresh token", query: "state=s1&code=c1", exchanger: &stubExchanger{token: &oauth2.Token{AccessToken: "a"}}, status: http.StatusBadGateway, wantErr: shared.ErrAuthProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOAuthHandler(tt.exchanger, "s1", "/callback")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			result := <-h.Result()
			if tt.wantErr == nil {
				if result.Error() != nil || result.Token == nil {
					t.Fatalf("expected token, got err %v", result.Error())
				}
				if !strings.Contains(rec.Body.String(), "Authorization Successful") {
					t.Error("expected success page")
				}
				return
			}
			if !errors.Is(result.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %v", result.Error(), tt.wantErr)
			}
		})
	}

	t.Run("only the first callback is processed", func(t *testing.T) {
		ex := &stubExchanger{token: okToken}
		h := NewOAuthHandler(ex, "s1", "/callback")

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=c1", nil))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=c2", nil))

		if second.Code != http.StatusBadRequest {
			t.Errorf("replay status = %d", second.Code)
		}
		if len(ex.codes) != 1 || ex.codes[0] != "c1" {
			t.Errorf("exchanged codes = %v", ex.codes)
		}
		if _, ok := <-h.Result(); !ok {
			t.Error("expected one result")
		}
		if _, ok := <-h.Result(); ok {
			t.Error("channel should be closed after one result")
		}
	})

	t.Run("routes", func(t *testing.T) {
		h := NewOAuthHandler(&stubExchanger{}, "s1", "")
		if r := h.Routes(); len(r) != 1 || r[0] != "/callback" {
			t.Errorf("Routes() = %v", r)
		}
	})
}

func TestCallbackRouter(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewCallbackRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("order = %v", order)
		}
	})

	t.Run("method filtering", func(t *testing.T) {
		r := NewCallbackRouter()
		r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("handler routes with request logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&buf)
		logger.SetLevel(log.DebugLevel)

		r := NewCallbackRouter()
		r.Use(RequestLogger(logger))
		h := NewOAuthHandler(&stubExchanger{token: &oauth2.Token{AccessToken: "a", RefreshToken: "r"}}, "s1", "/auth/done")
		r.Handler(h)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/done?state=s1&code=secret-code", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}

		out := buf.String()
		if !strings.Contains(out, "/auth/done") || !strings.Contains(out, "200") {
			t.Errorf("log missing request details: %s", out)
		}
		if strings.Contains(out, "secret-code") {
			t.Error("authorization code must not be logged")
		}
	})

	t.Run("stray paths do not reach the callback", func(t *testing.T) {
		h := NewOAuthHandler(&stubExchanger{token: &oauth2.Token{AccessToken: "a", RefreshToken: "r"}}, "s1", "/callback")
		r := NewCallbackRouter()
		r.Handler(h)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/callback?state=s1&code=c", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST callback status = %d", rec.Code)
		}

		select {
		case res := <-h.Result():
			t.Errorf("unexpected callback result: %+v", res)
		default:
		}
	})

	t.Run("root callback path", func(t *testing.T) {
		r := NewCallbackRouter()
		r.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("root status = %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("other status = %d", rec.Code)
		}
	})
}
