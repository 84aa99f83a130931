package core

// Off-core asynchronous tasks — metadata downloads dispatched by the event
// handler pipeline but executed outside its transaction. Downloads retry with
// exponential backoff; for Daos, a stored hash equal to the announced one
// short circuits the work.

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Tasks runs the asynchronous metadata refresh work on a bounded worker
// queue.
type Tasks struct {
	store  *Store
	files  *FileHandler
	alerts *logrus.Logger
	queue  chan func()
	done   chan struct{}
}

// NewTasks builds the task runner. Start must be called before tasks execute.
func NewTasks(store *Store, files *FileHandler, alerts *logrus.Logger) *Tasks {
	return &Tasks{
		store:  store,
		files:  files,
		alerts: alerts,
		queue:  make(chan func(), 256),
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (t *Tasks) Start() {
	go func() {
		defer close(t.done)
		for task := range t.queue {
			task()
		}
	}()
}

// Stop drains the queue and waits for the worker to exit.
func (t *Tasks) Stop() {
	close(t.queue)
	<-t.done
}

func (t *Tasks) enqueue(task func()) {
	select {
	case t.queue <- task:
	default:
		t.alerts.Warn("task queue full, dropping metadata refresh")
	}
}

// UpdateDaoMetadata fetches and stores the metadata documents announced for
// the given Daos. Daos whose stored hash already matches are skipped.
func (t *Tasks) UpdateDaoMetadata(daoMetadata map[string]MetadataPair) {
	t.enqueue(func() { t.updateDaoMetadata(daoMetadata) })
}

func (t *Tasks) updateDaoMetadata(daoMetadata map[string]MetadataPair) {
	ids := make([]string, 0, len(daoMetadata))
	for id := range daoMetadata {
		ids = append(ids, id)
	}
	daos, err := t.store.DaosByIDs(ids)
	if err != nil {
		t.alerts.WithError(err).Error("Unexpected error while loading DAOs for metadata update.")
		return
	}
	var toUpdate []*Dao
	for _, dao := range daos {
		pair := daoMetadata[dao.ID]
		if dao.MetadataHash != nil && *dao.MetadataHash == pair.Hash {
			continue
		}
		url, hash := pair.URL, pair.Hash
		dao.MetadataURL = &url
		dao.MetadataHash = &hash
		metadata, err := t.download(pair.URL, pair.Hash)
		switch {
		case errors.Is(err, ErrHashMismatch):
			t.alerts.Error("Hash mismatch while fetching DAO metadata from provided url.")
		case err != nil:
			t.alerts.WithError(err).Error("Unexpected error while fetching DAO metadata from provided url.")
		default:
			dao.Metadata = metadata
		}
		toUpdate = append(toUpdate, dao)
	}
	if err := t.store.SaveDaos(toUpdate); err != nil {
		t.alerts.WithError(err).Error("Unexpected error while saving DAO metadata.")
	}
}

// UpdateProposalMetadata fetches and stores the metadata documents for the
// given proposals.
func (t *Tasks) UpdateProposalMetadata(proposalIDs []string) {
	t.enqueue(func() { t.updateProposalMetadata(proposalIDs) })
}

func (t *Tasks) updateProposalMetadata(proposalIDs []string) {
	proposals, err := t.store.ProposalsByIDs(proposalIDs)
	if err != nil {
		t.alerts.WithError(err).Error("Unexpected error while loading Proposals for metadata update.")
		return
	}
	var toUpdate []*Proposal
	for _, proposal := range proposals {
		if proposal.MetadataURL == nil || proposal.MetadataHash == nil {
			continue
		}
		metadata, err := t.download(*proposal.MetadataURL, *proposal.MetadataHash)
		switch {
		case errors.Is(err, ErrHashMismatch):
			t.alerts.Error("Hash mismatch while fetching Proposal metadata from provided url.")
		case err != nil:
			t.alerts.WithError(err).Error("Unexpected error while fetching Proposal metadata from provided url.")
		default:
			proposal.Metadata = metadata
			if title, ok := metadata["title"].(string); ok {
				proposal.Title = &title
			}
			toUpdate = append(toUpdate, proposal)
		}
	}
	if err := t.store.SaveProposals(toUpdate); err != nil {
		t.alerts.WithError(err).Error("Unexpected error while saving Proposal metadata.")
	}
}

// download fetches url with exponential backoff. A hash mismatch is final and
// never retried.
func (t *Tasks) download(url, hash string) (map[string]any, error) {
	var metadata map[string]any
	operation := func() error {
		var err error
		metadata, err = t.files.DownloadMetadata(context.Background(), url, hash)
		if errors.Is(err, ErrHashMismatch) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return metadata, nil
}

var _ TaskQueue = (*Tasks)(nil)
