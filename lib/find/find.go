// Package find locates the rig's USB GPIB adapter by walking /sys/class/tty
// and reading the USB identity of each serial device.
package find

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type FilterFn func(*Usbtty) bool

// PrologixFilter matches the Prologix GPIB-USB controller, which enumerates
// as an FTDI device.
func PrologixFilter(ut *Usbtty) bool {
	return ut.IDv == "0403" && strings.Contains(ut.Prod, "Prologix")
}

// AR488Filter matches an AR488 adapter built on an Arduino board.
func AR488Filter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

// AdapterFilter matches either supported GPIB adapter.
func AdapterFilter(ut *Usbtty) bool {
	return PrologixFilter(ut) || AR488Filter(ut)
}

// SerialFilter matches a device by its USB serial string, for rigs with
// more than one adapter plugged in.
func SerialFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// Find searches for a usb serial device. If filter is not nil, it is used
// to narrow choices down. The first device for which it returns true (if
// any) is chosen.
func Find(filter FilterFn) (string, error) {
	ttys, err := AllUsbTtys()
	if err != nil {
		return "", err
	}
	return pick(ttys, filter)
}

func pick(ttys Usbttys, filter FilterFn) (string, error) {
	if filter != nil {
		for i := range ttys {
			if filter(&ttys[i]) {
				ttys = Usbttys{ttys[i]}
				break
			}
		}
	}
	if len(ttys) == 0 {
		return "", fmt.Errorf("no matching ttys found")
	}
	if len(ttys) == 1 {
		return ttys[0].Dev, nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys finds ttys on usb devices by looking at /sys/class/tty and the
// device paths its symlinks resolve to. Devices whose identity files cannot
// be read are still listed, with the fields left blank.
func AllUsbTtys() (Usbttys, error) {
	var devs []Usbtty
	sct := "/sys/class/tty/"
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		// a symlink like /sys/class/tty/ttyACM0 ->
		// /sys/devices/.../usb1/1-10/1-10:1.0/tty/ttyACM0
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			continue
		}
		// the identity files live one level above the interface dir
		idP, idV, mfg, prod, serial, _ := readUsbInfo(filepath.Dir(dev))
		devs = append(devs, Usbtty{
			Dev:    e.Name(),
			Path:   abs,
			IDp:    idP,
			IDv:    idV,
			Mfg:    mfg,
			Prod:   prod,
			Serial: serial,
		})
	}
	return devs, nil
}

// readUsbInfo reads prod and vendor ids, and mfg/product/serial strings.
//
// Returns the last error encountered, ignoring os.ErrNotExist. Errors do
// not prevent reading additional files or returning data collected.
func readUsbInfo(dev string) (idp, idv, mfg, prod, serial string, err error) {
	read := func(name string) string {
		b, rerr := os.ReadFile(filepath.Join(dev, name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		return strings.TrimSpace(string(b))
	}
	idp = read("idProduct")
	idv = read("idVendor")
	mfg = read("manufacturer")
	prod = read("product")
	serial = read("serial")
	return idp, idv, mfg, prod, serial, err
}
