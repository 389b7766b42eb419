package command

import (
	"reflect"
	"testing"
)

func TestParseOpenOrder(t *testing.T) {
	got := Parse("BUY NIFTY 24000 CE 50")
	want := OpenOrder{Side: "BUY", Symbol: "NIFTY", Strike: 24000, OptionType: "CE", Qty: 50}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %#v, want %#v", got, want)
	}
}

func TestParseTable(t *testing.T) {
	cases := []struct {
		in   string
		want Intent
	}{
		{"SQUAREOFF", SquareoffAll{}},
		{"SQUAREOFF NIFTY 24000 CE", SquareoffLeg{Symbol: "NIFTY", Strike: 24000, OptionType: "CE"}},
		{"SQUAREOFF XYZ 24000 CE", nil},
		{"STATUS", StatusQuery{}},
		{"SELL BANKNIFTY 52000 PE 25", OpenOrder{Side: "SELL", Symbol: "BANKNIFTY", Strike: 52000, OptionType: "PE", Qty: 25}},
		{"buy nifty 24000 ce 50", OpenOrder{Side: "BUY", Symbol: "NIFTY", Strike: 24000, OptionType: "CE", Qty: 50}},
		{"  STATUS  ", StatusQuery{}},
		{"BUY   NIFTY  24000  CE  50", OpenOrder{Side: "BUY", Symbol: "NIFTY", Strike: 24000, OptionType: "CE", Qty: 50}},
		{"BUY XYZ 24000 CE 50", nil},
		{"BUY NIFTY 240 CE 50", nil},       // strike too short
		{"BUY NIFTY 2400000 CE 50", nil},   // strike too long
		{"BUY NIFTY 24000 XX 50", nil},     // bad option type
		{"BUY NIFTY 24000 CE", nil},        // qty missing
		{"HOLD NIFTY 24000 CE 50", nil},    // unknown verb
		{"SQUAREOFF NIFTY 24000", nil},     // leg missing option type
		{"SQUAREOFF NIFTY 24000 CE 50", nil},
		{"", nil},
		{"HELLO", nil},
	}
	for _, tc := range cases {
		got := Parse(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Parse(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

// Corrupting any single character of a valid command with a character
// that fits no grammar position must yield no intent.
func TestParseSingleCharCorruption(t *testing.T) {
	valid := []string{
		"BUY NIFTY 24000 CE 50",
		"SELL BANKNIFTY 52000 PE 25",
		"SQUAREOFF NIFTY 24000 CE",
		"SQUAREOFF",
		"STATUS",
	}
	for _, v := range valid {
		if Parse(v) == nil {
			t.Fatalf("Parse(%q) = nil, want intent", v)
		}
		for i := range v {
			b := []byte(v)
			b[i] = '#'
			corrupted := string(b)
			if got := Parse(corrupted); got != nil {
				t.Errorf("Parse(%q) = %#v, want nil", corrupted, got)
			}
		}
	}
}

// Digit-for-digit corruption can still match the grammar; the parsed
// fields must then reflect the corrupted text exactly, never the
// original.
func TestParseDigitCorruptionStaysStructural(t *testing.T) {
	got := Parse("BUY NIFTY 24900 CE 50")
	ord, ok := got.(OpenOrder)
	if !ok {
		t.Fatalf("Parse = %#v, want OpenOrder", got)
	}
	if ord.Strike != 24900 {
		t.Errorf("Strike = %d, want 24900", ord.Strike)
	}
}
