package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"facemark/internal/attend"
	"facemark/internal/export"
	"facemark/internal/model"
)

// statusFor maps the service error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attend.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, attend.ErrUnknownStudent):
		return http.StatusNotFound
	case errors.Is(err, attend.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, attend.ErrClassifierUnavailable), errors.Is(err, attend.ErrDeviceFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// Wire DTOs for model types that carry no json tags.

type studentJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

type recordJSON struct {
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	At        time.Time `json:"at"`
	Status    string    `json:"status"`
}

type eventJSON struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	At         time.Time  `json:"at"`
	Subject    string     `json:"subject,omitempty"`
	StudentID  string     `json:"student_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Confidence float64    `json:"confidence"`
	Status     string     `json:"status"`
	Face       model.Rect `json:"face"`
}

type sessionJSON struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject,omitempty"`
	Mode      string     `json:"mode"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

func toEventJSON(events []model.RecognitionEvent) []eventJSON {
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON{
			ID:         e.ID,
			SessionID:  e.SessionID,
			At:         e.At,
			Subject:    e.Subject,
			StudentID:  e.StudentID,
			Name:       e.Name,
			Confidence: e.Confidence,
			Status:     e.Status,
			Face:       e.Face,
		})
	}
	return out
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "session_running": s.svc.Running()})
}

func (s *Server) handleLogin(c *gin.Context) {
	if s.cfg.AuthPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication is not configured"})
		return
	}

	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"password\": \"...\"}"})
		return
	}
	if !passwordMatches(req.Password, s.cfg.AuthPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}

	ttl := time.Duration(s.cfg.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	token, exp, err := issueToken(s.cfg.JWTSecret, ttl, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp.Unix()})
}

func (s *Server) handleStatus(c *gin.Context) {
	var sessErr any
	if err := s.svc.SessionErr(); err != nil {
		sessErr = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"running":       s.svc.Running(),
		"mode":          s.svc.Mode(),
		"subject":       s.svc.Subject(),
		"alert_active":  s.svc.IsAlertActive(),
		"feed_clients":  s.hub.ClientCount(),
		"session_error": sessErr,
	})
}

func (s *Server) handleSubjectGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subject": s.svc.Subject()})
}

func (s *Server) handleSubjectPut(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"subject\": \"...\"}"})
		return
	}
	if err := s.svc.SelectSubject(req.Subject); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": s.svc.Subject()})
}

func (s *Server) handleSessionStart(c *gin.Context) {
	if err := s.svc.StartSession(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true, "mode": s.svc.Mode()})
}

func (s *Server) handleSessionStop(c *gin.Context) {
	var sessErr any
	if err := s.svc.StopSession(); err != nil {
		sessErr = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"running": false, "session_error": sessErr})
}

func (s *Server) handleSessions(c *gin.Context) {
	if s.sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session listing is not available"})
		return
	}
	rows, err := s.sessions.Sessions(intQuery(c, "limit", 20))
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]sessionJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionJSON{
			ID:        row.ID,
			Subject:   row.Subject,
			Mode:      row.Mode,
			StartedAt: row.StartedAt,
			StoppedAt: row.StoppedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (s *Server) handleSessionEvents(c *gin.Context) {
	events, err := s.svc.SessionEvents(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toEventJSON(events)})
}

func (s *Server) handleStudents(c *gin.Context) {
	students, err := s.svc.Students()
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]studentJSON, 0, len(students))
	for _, st := range students {
		out = append(out, studentJSON{ID: st.ID, Name: st.Name, RegisteredAt: st.RegisteredAt})
	}
	c.JSON(http.StatusOK, gin.H{"students": out})
}

func (s *Server) handleRegisterStudent(c *gin.Context) {
	var req struct {
		ID   string `json:"id" binding:"required"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"id\": \"...\", \"name\": \"...\"}"})
		return
	}
	student, err := s.svc.RegisterStudent(req.ID, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, studentJSON{
		ID:           student.ID,
		Name:         student.Name,
		RegisteredAt: student.RegisteredAt,
	})
}

func (s *Server) handleMark(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Subject   string `json:"subject"`
		At        string `json:"at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"student_id\": \"...\"}"})
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = s.svc.Subject()
	}
	var at time.Time
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at %q is not RFC3339", req.At)})
			return
		}
		at = parsed
	}

	if err := s.svc.MarkPresent(req.StudentID, subject, at); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"marked": true, "student_id": req.StudentID, "subject": subject})
}

func (s *Server) handleImport(c *gin.Context) {
	subject := c.Query("subject")
	if subject == "" {
		subject = s.svc.Subject()
	}
	count, err := s.svc.ImportMarks(c.Request.Body, subject)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": count, "subject": subject})
}

func (s *Server) handleAttendance(c *gin.Context) {
	subject := c.Query("subject")
	if subject == "" {
		subject = s.svc.Subject()
	}
	day := c.DefaultQuery("day", model.Day(time.Now()))

	records, err := s.svc.Attendance(subject, day)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON{
			StudentID: rec.StudentID,
			Name:      rec.Name,
			Subject:   rec.Subject,
			At:        rec.At,
			Status:    string(rec.Status),
		})
	}
	c.JSON(http.StatusOK, gin.H{"subject": subject, "day": day, "records": out})
}

func (s *Server) summaryFromQuery(c *gin.Context) (*model.AttendanceSummary, bool) {
	subject := c.Query("subject")
	if subject == "" {
		subject = s.svc.Subject()
	}
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return nil, false
	}
	sum, err := s.svc.Summary(subject, from, to)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return sum, true
}

func (s *Server) handleSummary(c *gin.Context) {
	sum, ok := s.summaryFromQuery(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteSummaryJSON(c.Writer, *sum); err != nil {
		s.log.Warn("summary write failed", "error", err)
	}
}

func (s *Server) handleReport(c *gin.Context) {
	sum, ok := s.summaryFromQuery(c)
	if !ok {
		return
	}
	base := fmt.Sprintf("%s_%s_%s", sum.Subject, sum.From, sum.To)

	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".csv"))
		c.Status(http.StatusOK)
		if err := export.WriteSummaryCSV(c.Writer, *sum); err != nil {
			s.log.Warn("report write failed", "error", err)
		}
	case "json":
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Status(http.StatusOK)
		if err := export.WriteSummaryJSON(c.Writer, *sum); err != nil {
			s.log.Warn("report write failed", "error", err)
		}
	case "xlsx":
		data, err := export.BuildSummaryXLSX(*sum)
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".xlsx"))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	case "pdf":
		data, err := export.BuildSummaryPDF(*sum)
		if err != nil {
			fail(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".pdf"))
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown report format: %s", format)})
	}
}

func (s *Server) handleEvents(c *gin.Context) {
	events, err := s.svc.RecentEvents(intQuery(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toEventJSON(events)})
}

func (s *Server) handleAlerts(c *gin.Context) {
	alerts, err := s.svc.RecentAlerts(intQuery(c, "limit", 20))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleCurrentAlert(c *gin.Context) {
	alert := s.svc.CurrentAlert()
	c.JSON(http.StatusOK, gin.H{"active": alert != nil, "alert": alert})
}

func (s *Server) handleResetAlert(c *gin.Context) {
	s.svc.ResetAlert()
	s.hub.Broadcast(feedMessage{Type: "alert_cleared"})
	c.JSON(http.StatusOK, gin.H{"active": false})
}
