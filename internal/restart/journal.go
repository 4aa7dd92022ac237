package restart

import (
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/airq/airnode/log2"
	"github.com/juju/errors"
	"github.com/temoto/extremofile"
)

type Fault struct {
	BootCount   uint32 `json:"boot_count"`
	LastFault   string `json:"last_fault,omitempty"`
	LastFaultAt int64  `json:"last_fault_at,omitempty"`
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Journal survives restart, so next telemetry record can tell why device rebooted.
// nil Journal is valid and stores nothing.
type Journal struct {
	sync.Mutex
	log     *log2.Log
	storage storage
	state   Fault
}

func OpenJournal(root string, log *log2.Log) *Journal {
	return &Journal{
		log: log,
		storage: extremofile.New(extremofile.Config{
			Dir:      filepath.Join(root, "journal"),
			DirPerm:  0755,
			FilePerm: 0644,
		}),
	}
}

// Boot increments boot count and returns state as left by previous run.
func (j *Journal) Boot() (Fault, error) {
	if j == nil {
		return Fault{}, nil
	}
	j.Lock()
	defer j.Unlock()
	b, err := j.storage.Read()
	if err != nil {
		if extremofile.IsCritical(err) {
			return Fault{}, errors.Annotate(err, "journal read")
		}
		j.log.Errorf("journal ignore non-critical err=%v", err)
	}
	var prev Fault
	if b != nil {
		if err = json.Unmarshal(b, &prev); err != nil {
			j.log.Errorf("journal corrupt content, reset err=%v", err)
			prev = Fault{}
		}
	}
	j.state = prev
	j.state.BootCount++
	return prev, j.store()
}

func (j *Journal) RecordFault(reason error, at time.Time) error {
	if j == nil {
		return nil
	}
	j.Lock()
	defer j.Unlock()
	j.state.LastFault = reason.Error()
	j.state.LastFaultAt = at.Unix()
	return j.store()
}

func (j *Journal) State() Fault {
	if j == nil {
		return Fault{}
	}
	j.Lock()
	defer j.Unlock()
	return j.state
}

func (j *Journal) store() error {
	b, err := json.Marshal(j.state)
	if err == nil {
		tbegin := time.Now()
		_, err = j.storage.Write(b)
		j.log.Debugf("journal write duration=%v", time.Since(tbegin))
	}
	return errors.Annotate(err, "journal store")
}
