package initialization

import (
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/config"
)

type backliteLogger struct{}

func (backliteLogger) Info(message string, params ...any) {
	log.Debug().Fields(params).Msg(message)
}

func (backliteLogger) Error(message string, params ...any) {
	log.Error().Fields(params).Msg(message)
}

// InitQueue opens the task database kept next to the main one and installs the backlite schema in it.
func InitQueue(cfg *config.Configuration) (*backlite.Client, error) {
	db, err := open(cfg.DbPath + "-tasks")
	if err != nil {
		return nil, err
	}

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		Logger:          backliteLogger{},
		ReleaseAfter:    10 * time.Minute,
		NumWorkers:      2,
		CleanupInterval: time.Hour,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err = client.Install(); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}
