package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lvfs/pkg/bus"
	"lvfs/pkg/db"
	"lvfs/services/hosting"
)

// DefaultDurable is the consumer name the ingestor subscribes with.
const DefaultDurable = "lvfs-audit"

// Subscriber delivers raw event payloads. *bus.Bus satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn bus.Handler) (io.Closer, error)
}

// Ingestor stores every hosting event as an audit row.
type Ingestor struct {
	orm *gorm.DB
	log zerolog.Logger
}

// NewIngestor returns an Ingestor writing through orm.
func NewIngestor(orm *gorm.DB, logger zerolog.Logger) (*Ingestor, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &Ingestor{orm: orm, log: logger}, nil
}

// Run subscribes to all hosting events and blocks until ctx is done.
func (i *Ingestor) Run(ctx context.Context, sub Subscriber, durable string) error {
	if durable == "" {
		durable = DefaultDurable
	}
	closer, err := sub.Subscribe(ctx, bus.SubjectPrefix+">", durable, i.Handle)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	i.log.Info().Str("durable", durable).Msg("audit ingestor running")

	<-ctx.Done()
	if err := closer.Close(); err != nil {
		i.log.Warn().Err(err).Msg("close subscription")
	}
	return nil
}

// Handle decodes one event and inserts it. Undecodable payloads are logged
// and dropped; insert failures are returned so the message is redelivered.
func (i *Ingestor) Handle(ctx context.Context, data []byte) error {
	var ev hosting.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		i.log.Error().Err(err).Msg("drop malformed event")
		return nil
	}
	if ev.Type == "" {
		i.log.Error().Msg("drop event without type")
		return nil
	}

	model := auditModel{
		Actor:   ev.Actor,
		Action:  ev.Type,
		Obj:     ev.Object,
		Details: datatypes.JSONMap(ev.Details),
		At:      ev.At.UTC(),
	}
	if model.Details == nil {
		model.Details = datatypes.JSONMap{}
	}
	if model.Actor == "" {
		model.Actor = "unknown"
	}

	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()
	if err := i.orm.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	i.log.Debug().Str("action", model.Action).Int64("id", model.ID).Msg("audit recorded")
	return nil
}

// List returns the most recent entries, newest first.
func List(ctx context.Context, orm *gorm.DB, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []auditModel
	if err := orm.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit rows: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out, nil
}
