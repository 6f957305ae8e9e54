package find

import "testing"

var testTtys = Usbttys{
	{Dev: "ttyUSB0", IDv: "0403", IDp: "6001", Mfg: "FTDI", Prod: "Prologix GPIB-USB Controller", Serial: "PX1234"},
	{Dev: "ttyACM0", IDv: "2341", IDp: "0043", Mfg: "Arduino (www.arduino.cc)", Prod: "Uno", Serial: "A603UX94"},
	{Dev: "ttyUSB1", IDv: "10c4", IDp: "ea60", Mfg: "Silicon Labs", Prod: "CP2102", Serial: "0001"},
}

func TestFilters(t *testing.T) {
	if !PrologixFilter(&testTtys[0]) {
		t.Error("prologix adapter not matched")
	}
	if PrologixFilter(&testTtys[2]) {
		t.Error("cp2102 matched as prologix")
	}
	if !AR488Filter(&testTtys[1]) {
		t.Error("arduino adapter not matched")
	}
	if !AdapterFilter(&testTtys[0]) || !AdapterFilter(&testTtys[1]) {
		t.Error("adapter filter missed a supported adapter")
	}
	if AdapterFilter(&testTtys[2]) {
		t.Error("adapter filter matched an unrelated device")
	}
}

func TestPick(t *testing.T) {
	dev, err := pick(testTtys, PrologixFilter)
	if err != nil {
		t.Fatal(err)
	}
	if dev != "ttyUSB0" {
		t.Errorf("got %s, want ttyUSB0", dev)
	}

	dev, err = pick(testTtys, SerialFilter("A603UX94"))
	if err != nil {
		t.Fatal(err)
	}
	if dev != "ttyACM0" {
		t.Errorf("got %s, want ttyACM0", dev)
	}

	if _, err := pick(testTtys, nil); err == nil {
		t.Error("expected an error with multiple candidates and no filter")
	}
	if _, err := pick(nil, nil); err == nil {
		t.Error("expected an error with no candidates")
	}
	if _, err := pick(testTtys, SerialFilter("nope")); err == nil {
		t.Error("expected an error when the filter matches nothing")
	}
}

func TestPickSingle(t *testing.T) {
	dev, err := pick(testTtys[:1], nil)
	if err != nil {
		t.Fatal(err)
	}
	if dev != "ttyUSB0" {
		t.Errorf("got %s, want ttyUSB0", dev)
	}
}
