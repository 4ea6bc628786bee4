package dicom

import (
	"bytes"
	"testing"
)

func TestLookupTransferSyntax(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		want         TransferSyntax
		deflated     bool
		encapsulated bool
	}{
		{
			"explicit vr little endian",
			ExplicitVRLittleEndianUID,
			ExplicitVRLittleEndian, false, false,
		},
		{
			"implicit vr little endian",
			ImplicitVRLittleEndianUID,
			ImplicitVRLittleEndian, false, false,
		},
		{
			"explicit vr big endian",
			ExplicitVRBigEndianUID,
			ExplicitVRBigEndian, false, false,
		},
		{
			"jpeg baseline uid",
			JPEGBaselineUID,
			ExplicitVRLittleEndian, false, true,
		},
		{
			"uid padded with a null byte",
			RLELosslessUID + "\x00",
			ExplicitVRLittleEndian, false, true,
		},
		{
			"deflated explicit vr little endian",
			DeflatedExplicitVRLittleEndianUID,
			ExplicitVRLittleEndian, true, false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := lookupTransferSyntax(tc.in)
			if !ok {
				t.Fatalf("expected %q to be known", tc.in)
			}
			if got.syntax != tc.want || got.deflated != tc.deflated || got.encapsulated != tc.encapsulated {
				t.Fatalf("got %+v, want %v deflated=%v encapsulated=%v", got, tc.want, tc.deflated, tc.encapsulated)
			}
		})
	}

	if _, ok := lookupTransferSyntax("1.2.3"); ok {
		t.Fatalf("expected 1.2.3 to be unknown")
	}
}

func TestParseTransferSyntax(t *testing.T) {
	tests := []struct {
		in      string
		want    TransferSyntax
		wantErr bool
	}{
		{"implicit-le", ImplicitVRLittleEndian, false},
		{"EXPLICIT-LE", ExplicitVRLittleEndian, false},
		{"explicit-be", ExplicitVRBigEndian, false},
		{ExplicitVRBigEndianUID, ExplicitVRBigEndian, false},
		{JPEG2000UID, ExplicitVRLittleEndian, false},
		{DeflatedExplicitVRLittleEndianUID, TransferSyntax{}, true},
		{"1.2.3", TransferSyntax{}, true},
		{"", TransferSyntax{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTransferSyntax(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("got error %v, want error %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTransferSyntaxNames(t *testing.T) {
	if got := TransferSyntaxName(JPEGBaselineUID); got != "JPEG Baseline (Process 1)" {
		t.Fatalf("got %q, want %q", got, "JPEG Baseline (Process 1)")
	}
	if got := TransferSyntaxName("1.2.3"); got != "1.2.3" {
		t.Fatalf("got %q, want the uid", got)
	}
	if got := ExplicitVRBigEndian.String(); got != "Explicit VR Big Endian" {
		t.Fatalf("got %q, want %q", got, "Explicit VR Big Endian")
	}
	if got := ImplicitVRLittleEndian.UID(); got != ImplicitVRLittleEndianUID {
		t.Fatalf("got %q, want %q", got, ImplicitVRLittleEndianUID)
	}
	if (TransferSyntax{}) != ExplicitVRLittleEndian {
		t.Fatalf("expected the zero value to be explicit vr little endian")
	}
}

func TestHeaderSize(t *testing.T) {
	tests := []struct {
		name   string
		syntax TransferSyntax
		vr     VR
		want   uint32
	}{
		{"implicit", ImplicitVRLittleEndian, OBVR, 8},
		{"explicit short length", ExplicitVRLittleEndian, USVR, 8},
		{"explicit long length", ExplicitVRBigEndian, SQVR, 12},
		{"explicit UN", ExplicitVRLittleEndian, UNVR, 12},
		{"explicit UC", ExplicitVRLittleEndian, UCVR, 12},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.syntax.headerSize(tc.vr); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWriteElementHeader(t *testing.T) {
	tests := []struct {
		name    string
		syntax  TransferSyntax
		vr      VR
		length  uint32
		want    []byte
		wantErr bool
	}{
		{
			"implicit",
			ImplicitVRLittleEndian, USVR, 2,
			[]byte{0x28, 0x00, 0x10, 0x00, 0x02, 0x00, 0x00, 0x00},
			false,
		},
		{
			"explicit big endian",
			ExplicitVRBigEndian, USVR, 2,
			[]byte{0x00, 0x28, 0x00, 0x10, 'U', 'S', 0x00, 0x02},
			false,
		},
		{
			"explicit long length",
			ExplicitVRLittleEndian, OBVR, 0x10000,
			[]byte{0x28, 0x00, 0x10, 0x00, 'O', 'B', 0x00, 0x00, 0x00, 0x00, 0x01, 0x00},
			false,
		},
		{
			"16-bit length overflow",
			ExplicitVRLittleEndian, USVR, 0x10000,
			nil,
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := tc.syntax.writeElementHeader(&dcmWriter{w: &buf}, RowsTag, tc.vr, tc.length)
			if (err != nil) != tc.wantErr {
				t.Fatalf("got error %v, want error %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if !bytes.Equal(buf.Bytes(), tc.want) {
				t.Fatalf("got % x, want % x", buf.Bytes(), tc.want)
			}
		})
	}
}
