package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	commandPut    = "put"
	commandBatch  = "batch"
	commandRemove = "remove"
	commandClear  = "clear"
	commandIndex  = "index"
)

type command struct {
	Name      string          `json:"name"`
	Uuid      string          `json:"uuid"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type removePayload struct {
	Key string `json:"key"`
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// journal is an append only command log, one JSON command per line. The
// write is synchronous so a store operation does not return until its
// command is handed to the operating system.
type journal struct {
	file *os.File
}

// openJournal replays the commands of filename through apply and leaves
// the file positioned for appending. A torn command at the tail (a
// crash in the middle of a write) is dropped and truncated away so the
// journal stays parseable.
func openJournal(filename string, apply func(c *command) error) (*journal, error) {

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	offset := int64(0)
	torn := false
	decoder := json.NewDecoder(f)
	for {
		c := &command{}
		err := decoder.Decode(c)
		if err == io.EOF {
			break
		}
		if err != nil {
			torn = true
			break
		}
		if err := apply(c); err != nil {
			f.Close()
			return nil, fmt.Errorf("replay '%s': %w", filename, err)
		}
		offset = decoder.InputOffset()
	}

	if torn {
		if err := f.Truncate(offset); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate torn tail: %w", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek journal end: %w", err)
	}

	return &journal{file: f}, nil
}

func (j *journal) append(name string, payload any) error {

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json encode payload: %w", err)
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	defer bufferPool.Put(buf)
	buf.Reset()

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.Encode(&command{
		Name:      name,
		Uuid:      uuid.New().String(),
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	})

	if _, err := j.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (j *journal) appendPut(record json.RawMessage) error {
	return j.append(commandPut, record)
}

func (j *journal) appendBatch(records []json.RawMessage) error {
	return j.append(commandBatch, records)
}

func (j *journal) appendRemove(key string) error {
	return j.append(commandRemove, removePayload{Key: key})
}

func (j *journal) appendClear() error {
	return j.append(commandClear, struct{}{})
}

func (j *journal) appendIndex(schema IndexSchema) error {
	return j.append(commandIndex, schema)
}

func (j *journal) close() error {
	return j.file.Close()
}
