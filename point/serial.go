package point

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/albenik/go-serial/v2"
	"go.uber.org/zap"
	"nyiyui.ca/hato/interlocking/layout"
)

// ErrNoLine is returned for tracks without a configured controller line.
var ErrNoLine = errors.New("no line configured for track")

// reqLine is a command to set the power of one line of a soyuu-line style controller.
type reqLine struct {
	Line      byte
	Brake     bool
	Direction bool
	Power     uint8
}

func (r reqLine) String() string {
	var send [7]byte
	// CAAN000
	// C - change
	//  A - line
	//   A - direction
	//    N - brake
	//     000 - power
	send[0] = 'C'
	send[1] = r.Line
	if r.Direction {
		send[2] = 'A'
	} else {
		send[2] = 'B'
	}
	if r.Brake {
		send[3] = 'Y'
	} else {
		send[3] = 'N'
	}
	power := fmt.Sprintf("%03d", r.Power)
	copy(send[4:], power)
	return string(send[:])
}

type SerialConf struct {
	// Lines maps a switch to the controller line (usually A to H) powering its point machine.
	Lines map[layout.TrackID]byte
	// Power is the power used to throw the point.
	Power uint8
	// Pulse is how long power is applied to the point machine.
	Pulse time.Duration
}

// Serial drives point machines wired to a line controller over a serial connection.
// Normal is sent as direction A, reverse as direction B.
type Serial struct {
	conf     SerialConf
	f        io.Writer
	fileLock sync.Mutex
	closer   io.Closer
}

// NewSerial drives point machines through f.
func NewSerial(f io.Writer, conf SerialConf) *Serial {
	return &Serial{conf: conf, f: f}
}

// OpenSerial opens the serial port at path (e.g. /dev/ttyACM0).
func OpenSerial(path string, baud int, conf SerialConf) (*Serial, error) {
	port, err := serial.Open(path,
		serial.WithBaudrate(baud),
		serial.WithReadTimeout(1000),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := NewSerial(port, conf)
	s.closer = port
	zap.S().Infow("serial: opened", "path", path, "baud", baud, "lines", len(conf.Lines))
	return s, nil
}

func (s *Serial) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Serial) commit(r reqLine) error {
	s.fileLock.Lock()
	defer s.fileLock.Unlock()
	_, err := fmt.Fprintf(s.f, "%s\n", r)
	return err
}

func (s *Serial) SetPosition(ctx context.Context, track layout.TrackID, pos layout.Position) *Task {
	t := NewTask(track, pos)
	line, ok := s.conf.Lines[track]
	if !ok {
		t.Finish(fmt.Errorf("%w %d", ErrNoLine, track))
		return t
	}
	if pos != layout.PositionNormal && pos != layout.PositionReverse {
		t.Finish(fmt.Errorf("invalid position %s", pos))
		return t
	}
	go func() {
		err := s.commit(reqLine{
			Line:      line,
			Direction: pos == layout.PositionNormal,
			Power:     s.conf.Power,
		})
		if err != nil {
			t.Finish(fmt.Errorf("commit(switch): %w", err))
			return
		}
		timer := time.NewTimer(s.conf.Pulse)
		defer timer.Stop()
		var cancelled error
		select {
		case <-timer.C:
		case <-ctx.Done():
			cancelled = ctx.Err()
		}
		// always cut power, even when cancelled
		err = s.commit(reqLine{Line: line, Brake: true, Power: 0})
		if err != nil {
			t.Finish(fmt.Errorf("commit(timeout): %w", err))
			return
		}
		t.Finish(cancelled)
	}()
	return t
}
