package device

import "testing"

func TestRegisterAndLookupChar(t *testing.T) {
	r := NewRegistry()
	c := NewConsoleDevice()

	if err := r.RegisterChar(c); err != nil {
		t.Fatalf("RegisterChar: %v", err)
	}

	got, err := r.LookupChar("console")
	if err != nil {
		t.Fatalf("LookupChar: %v", err)
	}
	if got != c {
		t.Fatalf("LookupChar returned a different device")
	}

	if err := r.RegisterChar(c); err == nil {
		t.Fatalf("duplicate RegisterChar: want error, got nil")
	}
}

func TestLookupUnknownDevice(t *testing.T) {
	r := NewRegistry()
	if _, err := r.LookupBlock("disk0"); err == nil {
		t.Fatalf("LookupBlock(unregistered): want error, got nil")
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	d := NewMemDevice("disk0", 4096)

	if err := r.RegisterBlock(d); err != nil {
		t.Fatalf("RegisterBlock: %v", err)
	}
	if err := r.Unregister("disk0"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := r.LookupBlock("disk0"); err == nil {
		t.Fatalf("LookupBlock after Unregister: want error, got nil")
	}
}

func TestNamesReportsKind(t *testing.T) {
	r := NewRegistry()
	r.RegisterChar(NewConsoleDevice())
	r.RegisterBlock(NewMemDevice("disk0", 4096))

	names := r.Names()
	if names["console"] != KindChar {
		t.Fatalf("Names()[console] = %v, want KindChar", names["console"])
	}
	if names["disk0"] != KindBlock {
		t.Fatalf("Names()[disk0] = %v, want KindBlock", names["disk0"])
	}
}

func TestMemDeviceReadWrite(t *testing.T) {
	d := NewMemDevice("disk0", 4096)

	if _, err := d.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	buf := make([]byte, 5)
	if _, err := d.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("ReadAt = %q, want %q", buf, "hello")
	}
}

func TestConsoleDeviceBuffers(t *testing.T) {
	c := NewConsoleDevice()
	c.Write([]byte("boot ok\n"))

	if got := string(c.Buffered()); got != "boot ok\n" {
		t.Fatalf("Buffered() = %q, want %q", got, "boot ok\n")
	}
}
