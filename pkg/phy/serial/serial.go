// Package serial implements a phy.Bus backend over a real TTY-attached
// modem, using github.com/daedaluz/goserial for the device I/O. It moves
// bytes only: fixed-size frame reads off the wire and raw writes, with
// all LAPDm/LAPD framing staying in pkg/codec where it belongs. No L1
// burst scheduling, bit-exact FEC, or interleaving is implemented here,
// consistent with spec.md's Non-goals.
package serial

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	serialport "github.com/daedaluz/goserial"

	"github.com/kc1fsz/lapdm/pkg/phy"
)

func init() {
	phy.RegisterInterface("serial", New)
}

// defaultFrameLen is the on-air size of a Format B frame on a SACCH/SDCCH
// channel (header + LI + N201), the common case for a single-channel modem
// link. Multi-channel deployments pass an explicit frame length in the
// channel spec.
const defaultFrameLen = 23

// Bus is a phy.Bus backed by a single serial device. The channel string
// given to New is "path[:baud[:framelen]]", e.g. "/dev/ttyUSB0:115200:23".
type Bus struct {
	path     string
	baud     int
	frameLen int
	chanID   uint8

	log *logrus.Entry

	mu       sync.Mutex
	port     *serialport.Port
	listener phy.FrameListener
	stopCh   chan struct{}
}

// New parses spec ("path[:baud[:framelen]]") into an unconnected Bus.
func New(spec string) (phy.Bus, error) {
	parts := strings.Split(spec, ":")
	b := &Bus{path: parts[0], baud: 115200, frameLen: defaultFrameLen}
	if len(parts) > 1 {
		baud, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("serial: bad baud %q: %w", parts[1], err)
		}
		b.baud = baud
	}
	if len(parts) > 2 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("serial: bad framelen %q: %w", parts[2], err)
		}
		b.frameLen = n
	}
	b.log = logrus.WithField("phy", "serial").WithField("device", b.path)
	return b, nil
}

var baudFlags = map[int]serialport.CFlag{
	9600:    serialport.B9600,
	19200:   serialport.B19200,
	38400:   serialport.B38400,
	57600:   serialport.B57600,
	115200:  serialport.B115200,
	230400:  serialport.B230400,
	460800:  serialport.B460800,
	921600:  serialport.B921600,
	1000000: serialport.B1000000,
}

// Connect opens the device, puts it in raw mode, and sets the configured
// baud rate via the CBAUD bits in Cflag -- the same Termios dance the
// teacher's MakeRaw/GetAttr/SetAttr trio perform, just with the baud bits
// also set explicitly since MakeRaw alone leaves the line speed untouched.
func (b *Bus) Connect(...any) error {
	port, err := serialport.Open(b.path, serialport.NewOptions())
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", b.path, err)
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return fmt.Errorf("serial: raw mode %s: %w", b.path, err)
	}
	flag, ok := baudFlags[b.baud]
	if !ok {
		port.Close()
		return fmt.Errorf("serial: unsupported baud %d", b.baud)
	}
	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return fmt.Errorf("serial: get attrs %s: %w", b.path, err)
	}
	attrs.Cflag = (attrs.Cflag &^ serialport.CBAUD) | flag
	if err := port.SetAttr(serialport.TCSANOW, attrs); err != nil {
		port.Close()
		return fmt.Errorf("serial: set baud %s: %w", b.path, err)
	}
	b.mu.Lock()
	b.port = port
	b.mu.Unlock()
	return nil
}

// Disconnect closes the device and stops the receive pump.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// Send writes frame.Data to the device, padding or truncating to framelen
// is the caller's (pkg/codec's) responsibility: Send never reshapes bytes.
func (b *Bus) Send(frame phy.Frame) error {
	b.mu.Lock()
	port := b.port
	b.mu.Unlock()
	if port == nil {
		return fmt.Errorf("serial: %s not connected", b.path)
	}
	_, err := port.Write(frame.Data)
	return err
}

// Subscribe registers listener and starts the fixed-size-frame receive
// pump if not already running.
func (b *Bus) Subscribe(listener phy.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
	if b.stopCh != nil {
		return nil
	}
	if b.port == nil {
		return fmt.Errorf("serial: %s not connected", b.path)
	}
	b.stopCh = make(chan struct{})
	go b.pump(b.port, b.stopCh)
	return nil
}

// pump reads exactly frameLen bytes at a time and delivers each as one
// phy.Frame, retrying on short reads the way a real TTY commonly returns
// partial data.
func (b *Bus) pump(port *serialport.Port, stop chan struct{}) {
	buf := make([]byte, b.frameLen)
	have := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.ReadTimeout(buf[have:], 100*time.Millisecond)
		if err != nil {
			continue
		}
		have += n
		if have < b.frameLen {
			continue
		}
		have = 0
		b.mu.Lock()
		l := b.listener
		b.mu.Unlock()
		if l != nil {
			frame := phy.Frame{Channel: b.chanID, Data: append([]byte{}, buf...)}
			l.Handle(frame)
		}
	}
}
