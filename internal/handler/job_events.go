package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"viral-clipper/internal/appcore"
	"viral-clipper/internal/response"
	"viral-clipper/internal/storage"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// JobEventMessage is one frame on the job event stream.
type JobEventMessage struct {
	JobId     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

func eventMessage(ev appcore.JobEvent) JobEventMessage {
	msg := JobEventMessage{
		JobId:   ev.JobID,
		Stage:   ev.Stage.String(),
		Message: ev.Message,
		Time:    ev.OccurredAt,
	}
	if ev.Err != nil {
		msg.ErrorKind = apperrors.Kind(ev.Err)
		msg.Error = ev.Err.Error()
	}
	return msg
}

// JobEvents streams a job's stage changes over a websocket until the job
// finishes or the client goes away.
func (h Handler) JobEvents(c *gin.Context) {
	jobID := c.Param("jobId")

	record, err := storage.GetJob(jobID)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.GetLogger().Warn("JobEvents upgrade failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	defer conn.Close()

	// jobs finished before this process started are only known to storage
	if _, known := h.Hub.Last(jobID); !known {
		if stage := appcore.ParseJobStage(record.Status); stage.IsTerminal() {
			writeEvent(conn, JobEventMessage{
				JobId:     jobID,
				Stage:     record.Status,
				ErrorKind: record.ErrorKind,
				Error:     record.ErrorMsg,
				Time:      record.UpdatedAt,
			})
			closeStream(conn)
			return
		}
	}

	events, unsubscribe := h.Hub.Subscribe(jobID)
	defer unsubscribe()

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-events:
			if !ok {
				closeStream(conn)
				return
			}
			if err := writeEvent(conn, eventMessage(ev)); err != nil {
				log.GetLogger().Debug("JobEvents write failed", zap.String("job_id", jobID), zap.Error(err))
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, msg JobEventMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	return conn.WriteJSON(msg)
}

func closeStream(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
		time.Now().Add(eventWriteTimeout))
}
