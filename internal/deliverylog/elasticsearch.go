// internal/deliverylog/elasticsearch.go
package deliverylog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"booking-notifications/internal/common/errors"
)

// ElasticsearchSink mirrors entries into a search index for support tooling.
// It is optional; deployments without the index simply do not configure it.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Write(ctx context.Context, entry *Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return errors.NewIndexWriteFailedError(s.index, err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(entry.ID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.NewIndexWriteFailedError(s.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewIndexWriteFailedError(s.index, fmt.Errorf("index response: %s", res.String()))
	}
	return nil
}
