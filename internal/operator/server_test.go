package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/rma-receiver/internal/folder"
	"github.com/zombor/rma-receiver/internal/history"
	"github.com/zombor/rma-receiver/internal/screen"
	"github.com/zombor/rma-receiver/internal/session"
)

func TestOperator(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Operator Suite")
}

// mockController is a mock implementation of Controller
type mockController struct {
	status     session.Status
	item       *session.ItemResult
	startErr   error
	advanceErr error
	damagedErr error
	statusErr  error

	startedRMA string
	damaged    *bool
	aborted    bool
}

func (m *mockController) Start(ctx context.Context, rma string, damaged bool) (session.Status, error) {
	m.startedRMA = rma
	m.damaged = &damaged
	return m.status, m.startErr
}

func (m *mockController) Advance(ctx context.Context) (*session.ItemResult, session.Status, error) {
	return m.item, m.status, m.advanceErr
}

func (m *mockController) SetDamaged(ctx context.Context, damaged bool) (session.Status, error) {
	if m.statusErr != nil {
		return session.Status{}, m.statusErr
	}
	if m.damagedErr != nil {
		return m.status, m.damagedErr
	}
	m.damaged = &damaged
	m.status.Damaged = damaged
	return m.status, nil
}

func (m *mockController) Abort(ctx context.Context) (session.Status, error) {
	if m.statusErr != nil {
		return session.Status{}, m.statusErr
	}
	m.aborted = true
	m.status.State = session.Aborted
	return m.status, nil
}

func (m *mockController) Status(ctx context.Context) (session.Status, error) {
	if m.statusErr != nil {
		return session.Status{}, m.statusErr
	}
	return m.status, nil
}

// mockHistory is a mock implementation of History
type mockHistory struct {
	sessions map[string]*history.Session
	items    map[string][]*history.Item
	listErr  error
}

func newMockHistory() *mockHistory {
	return &mockHistory{
		sessions: make(map[string]*history.Session),
		items:    make(map[string][]*history.Item),
	}
}

func (m *mockHistory) ListSessions() ([]*history.Session, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var sessions []*history.Session
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (m *mockHistory) GetSession(id string) (*history.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, history.ErrNotFound)
	}
	return s, nil
}

func (m *mockHistory) ListItems(sessionID string) ([]*history.Item, error) {
	return m.items[sessionID], nil
}

var _ = Describe("Server", func() {
	var (
		controller  *mockController
		hist        *mockHistory
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	// request sends one request through the full handler chain
	request := func(method, path string, body any) *http.Response {
		ghttpServer.AppendHandlers(server.Handler().ServeHTTP)

		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	BeforeEach(func() {
		controller = &mockController{
			status: session.Status{
				ID:       "session-1",
				RMA:      "RMA1234567",
				State:    session.IteratingSerials,
				Serials:  2,
				Message:  "RMA Serial Number Saved.",
				Failures: []session.ItemFailure{},
			},
		}
		hist = newMockHistory()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		server = NewServerWithMux(controller, hist, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		It("should serve the operator page", func() {
			resp := request("GET", "/", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html; charset=utf-8"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("RMA Receiver"))
		})

		It("should wire the keyboard shortcuts", func() {
			resp := request("GET", "/", nil)
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`document.addEventListener("keydown"`))
			Expect(string(body)).To(ContainSubstring(`$("start").click()`))
			Expect(string(body)).To(ContainSubstring(`$("next").click()`))
		})

		It("should only send the damaged toggle to an active session", func() {
			resp := request("GET", "/", nil)
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("if (!active) return;"))
		})

		It("should not serve unknown paths", func() {
			resp := request("GET", "/nope", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleStartSession", func() {
		It("should start the session", func() {
			resp := request("POST", "/api/session", map[string]any{"rma": "RMA1234567", "damaged": true})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(controller.startedRMA).To(Equal("RMA1234567"))
			Expect(*controller.damaged).To(BeTrue())

			var status session.Status
			decode(resp, &status)
			Expect(status.Serials).To(Equal(2))
		})

		It("should render the state by name", func() {
			resp := request("POST", "/api/session", map[string]any{"rma": "RMA1234567"})
			var body map[string]any
			decode(resp, &body)
			Expect(body["state"]).To(Equal("IteratingSerials"))
		})

		When("the body is invalid", func() {
			It("should return status Bad Request", func() {
				ghttpServer.AppendHandlers(server.Handler().ServeHTTP)
				resp, err := http.Post(ghttpServer.URL()+"/api/session", "application/json", bytes.NewBufferString("{"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the RMA id is malformed", func() {
			BeforeEach(func() {
				controller.startErr = fmt.Errorf("%w: %q", folder.ErrMalformedRMA, "bogus")
				controller.status = session.Status{}
			})

			It("should return status Bad Request without a status", func() {
				resp := request("POST", "/api/session", map[string]any{"rma": "bogus"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]any
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("RMA code must start with 'RMA'"))
				Expect(body).NotTo(HaveKey("status"))
			})
		})

		When("a session is already active", func() {
			BeforeEach(func() {
				controller.startErr = session.ErrSessionActive
				controller.status = session.Status{}
			})

			It("should return status Conflict", func() {
				resp := request("POST", "/api/session", map[string]any{"rma": "RMA1234567"})
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("the RMA is not open", func() {
			BeforeEach(func() {
				controller.startErr = session.ErrRMANotOpen
				controller.status.State = session.Aborted
			})

			It("should return status Unprocessable Entity with the aborted session", func() {
				resp := request("POST", "/api/session", map[string]any{"rma": "RMA1234567"})
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var body errorResponse
				decode(resp, &body)
				Expect(body.Status).NotTo(BeNil())
				Expect(body.Status.ID).To(Equal("session-1"))
			})
		})
	})

	Describe("handleAdvance", func() {
		BeforeEach(func() {
			controller.item = &session.ItemResult{ItemRecord: session.ItemRecord{Serial: "1111111111", SLA: "Yes"}}
			controller.status.State = session.AwaitingUserAdvance
		})

		It("should return the item and status", func() {
			resp := request("POST", "/api/session/advance", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Item   session.ItemResult `json:"item"`
				Status map[string]any     `json:"status"`
			}
			decode(resp, &body)
			Expect(body.Item.Serial).To(Equal("1111111111"))
			Expect(body.Status["state"]).To(Equal("AwaitingUserAdvance"))
		})

		When("a field is missing from the screen", func() {
			BeforeEach(func() {
				controller.item = nil
				controller.advanceErr = fmt.Errorf("processing serial 1111111111: %w",
					&screen.FieldError{Field: "part number", Keyword: "Part"})
			})

			It("should return status Unprocessable Entity", func() {
				resp := request("POST", "/api/session/advance", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("there is no session", func() {
			BeforeEach(func() {
				controller.advanceErr = session.ErrNoSession
				controller.status = session.Status{}
			})

			It("should return status Not Found", func() {
				resp := request("POST", "/api/session/advance", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleSetDamaged", func() {
		It("should set the flag", func() {
			resp := request("PUT", "/api/session/damaged", map[string]any{"damaged": true})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(*controller.damaged).To(BeTrue())
		})

		It("should require the damaged field", func() {
			resp := request("PUT", "/api/session/damaged", map[string]any{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(controller.damaged).To(BeNil())
		})

		When("the session has finished", func() {
			BeforeEach(func() {
				controller.status.State = session.Finished
				controller.damagedErr = session.ErrSessionEnded
			})

			It("should return status Conflict with the finished session", func() {
				resp := request("PUT", "/api/session/damaged", map[string]any{"damaged": true})
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))

				var body errorResponse
				decode(resp, &body)
				Expect(body.Error).To(Equal(session.ErrSessionEnded.Error()))
				Expect(body.Status).NotTo(BeNil())
				Expect(body.Status.State).To(Equal(session.Finished))
				Expect(controller.damaged).To(BeNil())
			})
		})
	})

	Describe("handleAbortSession", func() {
		It("should abort the session", func() {
			resp := request("DELETE", "/api/session", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(controller.aborted).To(BeTrue())
		})
	})

	Describe("handleGetSession", func() {
		When("the controller has stopped", func() {
			BeforeEach(func() {
				controller.statusErr = session.ErrControllerStopped
			})

			It("should return status Service Unavailable", func() {
				resp := request("GET", "/api/session", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			})
		})
	})

	Describe("history", func() {
		BeforeEach(func() {
			hist.sessions["s1"] = &history.Session{ID: "s1", RMA: "RMA1234567", StartedAt: time.Now()}
			hist.items["s1"] = []*history.Item{{ID: "000001", SessionID: "s1", Serial: "1111111111"}}
		})

		It("should list sessions", func() {
			resp := request("GET", "/api/history/sessions", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var sessions []*history.Session
			decode(resp, &sessions)
			Expect(sessions).To(HaveLen(1))
		})

		It("should return a session with its items", func() {
			resp := request("GET", "/api/history/sessions/s1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body struct {
				Session *history.Session `json:"session"`
				Items   []*history.Item  `json:"items"`
			}
			decode(resp, &body)
			Expect(body.Session.RMA).To(Equal("RMA1234567"))
			Expect(body.Items).To(HaveLen(1))
		})

		It("should return status Not Found for an unknown session", func() {
			resp := request("GET", "/api/history/sessions/missing", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		When("no sessions exist", func() {
			BeforeEach(func() {
				hist = newMockHistory()
			})

			It("should return an empty array", func() {
				resp := request("GET", "/api/history/sessions", nil)
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal("[]\n"))
			})
		})

		When("listing fails", func() {
			BeforeEach(func() {
				hist.listErr = errors.New("db closed")
			})

			It("should return status Internal Server Error", func() {
				resp := request("GET", "/api/history/sessions", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("operations endpoints", func() {
		It("should report health", func() {
			resp := request("GET", "/healthcheck", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should expose metrics", func() {
			request("GET", "/healthcheck", nil)
			resp := request("GET", "/metrics", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("rma_http_requests_total"))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := request("OPTIONS", "/api/session", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("should accept valid credentials", func() {
			resp := request("GET", "/api/session", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject missing credentials", func() {
			ghttpServer.AppendHandlers(server.Handler().ServeHTTP)
			resp, err := http.Get(ghttpServer.URL() + "/api/session")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should reject wrong credentials", func() {
			auth.Password = "wrong"
			resp := request("GET", "/api/session", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should leave the healthcheck open", func() {
			ghttpServer.AppendHandlers(server.Handler().ServeHTTP)
			resp, err := http.Get(ghttpServer.URL() + "/healthcheck")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
