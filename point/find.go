package point

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/albenik/go-serial/v2"
	"go.uber.org/zap"
)

// ErrNoController is returned by Find when no port identifies as the wanted controller.
var ErrNoController = errors.New("no line controller found")

// DeviceID is the identity a controller reports, e.g. soyuu-line-mega-0/mega0/0.
type DeviceID struct {
	Type     string
	Variant  string
	Instance string
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%s/%s/%s", d.Type, d.Variant, d.Instance)
}

func parseDeviceID(s string) DeviceID {
	ss := strings.SplitN(s, "/", 3)
	for len(ss) < 3 {
		ss = append(ss, "")
	}
	return DeviceID{Type: ss[0], Variant: ss[1], Instance: ss[2]}
}

// identify asks a controller for its identity. The reply is a line starting with " I".
func identify(f io.ReadWriter) (DeviceID, error) {
	_, err := f.Write([]byte("I\r\n"))
	if err != nil {
		return DeviceID{}, err
	}
	reader := bufio.NewReader(f)
	var line string
	for !strings.HasPrefix(line, " I") {
		line, err = reader.ReadString('\n')
		if err != nil {
			return DeviceID{}, fmt.Errorf("reading id: %w", err)
		}
	}
	line = strings.TrimSpace(line[2:])
	if line == "" {
		return DeviceID{}, errors.New("empty id")
	}
	return parseDeviceID(line), nil
}

// Find probes /dev/ttyACM* and returns the first port whose controller type is typ.
func Find(typ string, baud int) (string, DeviceID, error) {
	matches, err := filepath.Glob("/dev/ttyACM*")
	if err != nil {
		return "", DeviceID{}, err
	}
	for _, path := range matches {
		id, err := probe(path, baud)
		if err != nil {
			zap.S().Debugw("find: probe failed", "path", path, "err", err)
			continue
		}
		zap.S().Infow("find: probed", "path", path, "id", id)
		if id.Type == typ {
			return path, id, nil
		}
	}
	return "", DeviceID{}, fmt.Errorf("%w: %s", ErrNoController, typ)
}

func probe(path string, baud int) (DeviceID, error) {
	port, err := serial.Open(path,
		serial.WithBaudrate(baud),
		serial.WithReadTimeout(1000),
	)
	if err != nil {
		return DeviceID{}, err
	}
	defer port.Close() // ignore error
	return identify(port)
}
