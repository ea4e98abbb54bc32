package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"screenrec/internal/domain"
)

type messageResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Message       string                `json:"message"`
	Recording     bool                  `json:"recording"`
	LastKeepAlive int64                 `json:"lastKeepAlive"`
	State         domain.SessionState   `json:"state"`
	SessionID     string                `json:"sessionId,omitempty"`
	Basename      string                `json:"basename,omitempty"`
	PendingMerge  string                `json:"pendingMerge,omitempty"`
	Workers       []domain.WorkerStatus `json:"workers"`
}

type startResponse struct {
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId"`
	Basename  string    `json:"basename"`
	StartedAt time.Time `json:"startedAt"`
}

type stopResponse struct {
	Message  string `json:"message"`
	Basename string `json:"basename"`
	Output   string `json:"output"`
	Merged   bool   `json:"merged"`
}

func (s *Server) status(c echo.Context) error {
	st := s.recorder.Status()
	if s.enrich != nil {
		st = s.enrich(st)
	}

	resp := statusResponse{
		Message:      "Recorder is ok!",
		Recording:    st.Active,
		State:        st.State,
		SessionID:    st.SessionID,
		Basename:     st.Basename,
		PendingMerge: st.PendingMerge,
		Workers:      st.Workers,
	}
	if !st.LastKeepAlive.IsZero() {
		resp.LastKeepAlive = st.LastKeepAlive.Unix()
	}
	if resp.Workers == nil {
		resp.Workers = []domain.WorkerStatus{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) start(c echo.Context) error {
	result, err := s.recorder.Start(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, startResponse{
		Message:   "Screen capture started",
		SessionID: result.SessionID,
		Basename:  result.Basename,
		StartedAt: result.StartedAt,
	})
}

func (s *Server) stop(c echo.Context) error {
	result, err := s.recorder.Stop(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newStopResponse("Capture stopped successfully", result))
}

func (s *Server) keepAlive(c echo.Context) error {
	s.recorder.Ping()
	return c.JSON(http.StatusOK, messageResponse{Message: "Ok"})
}

func (s *Server) merge(c echo.Context) error {
	result, err := s.recorder.Finalize(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newStopResponse("Merge completed", result))
}

func (s *Server) watch(c echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event stream disabled")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	s.hub.Serve(conn)
	return nil
}

func newStopResponse(message string, result domain.StopResult) stopResponse {
	return stopResponse{
		Message:  message,
		Basename: result.Basename,
		Output:   result.Output,
		Merged:   result.Merged,
	}
}
