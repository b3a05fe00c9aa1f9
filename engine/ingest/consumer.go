package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
	"github.com/NewsDeskAI/newsdesk/pkg/natsutil"
)

const (
	// ArticlesSubject is the NATS subject for incoming articles.
	ArticlesSubject = "newsdesk.articles"
	// DLQSubject is the dead letter queue for articles that keep failing.
	DLQSubject = "newsdesk.articles.dlq"
	// MaxRetries before an article is sent to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Article domain.Article `json:"article"`
	Error   string         `json:"error"`
	Retries int            `json:"retries"`
}

// StartConsumer subscribes to the articles subject and runs each incoming
// article through the pipeline, with retry headers and DLQ support.
func StartConsumer(nc *nats.Conn, pipeline *Pipeline, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return nc.Subscribe(ArticlesSubject, func(msg *nats.Msg) {
		var article domain.Article
		if err := json.Unmarshal(msg.Data, &article); err != nil {
			logger.Error("ingest: unmarshal article failed", "err", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		ctx := natsutil.Extract(msg)
		report, err := pipeline.Ingest(ctx, []domain.Article{article})
		if err == nil {
			logger.Info("ingest: article stored", "doc_id", article.ID, "chunks", report.Chunks)
			return
		}

		retries++
		logger.Error("ingest: pipeline failed", "doc_id", article.ID, "retry", retries, "err", err)

		if retries >= MaxRetries {
			dlq := dlqMessage{Article: article, Error: err.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
				logger.Error("ingest: DLQ publish failed", "err", pubErr)
			}
			return
		}

		retryMsg := nats.NewMsg(ArticlesSubject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
		if pubErr := nc.PublishMsg(retryMsg); pubErr != nil {
			logger.Error("ingest: retry publish failed", "err", pubErr)
		}
	})
}
