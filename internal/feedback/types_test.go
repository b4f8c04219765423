package feedback

import (
	"errors"
	"testing"
)

func TestKindJSONStream(t *testing.T) {
	jsonKinds := []Kind{KindOutcome, KindImprove, KindUnderstand, KindAnnotation, KindAgain}
	for _, k := range jsonKinds {
		if !k.JSONStream() {
			t.Errorf("%s should stream JSON", k)
		}
	}
	for _, k := range []Kind{KindCustom, KindDetail, KindMeaning} {
		if k.JSONStream() {
			t.Errorf("%s should stream markdown", k)
		}
	}
}

func TestDescriptorDecodeOutcome(t *testing.T) {
	d, err := DescriptorFor(KindOutcome)
	if err != nil {
		t.Fatalf("DescriptorFor: %v", err)
	}

	u, err := d.Decode(map[string]interface{}{
		"remark": "the loop terminates",
		"ismet":  true,
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := u.(*Outcome)
	if out.Remark != "the loop terminates" || !out.IsMet {
		t.Errorf("decoded %+v", out)
	}
	if d.FilterText(u) != "the loop terminates" {
		t.Errorf("FilterText = %q", d.FilterText(u))
	}
	if !d.Positive(u) {
		t.Error("ismet=true should be positive")
	}

	d.SetExtraInfo(u, true)
	if !out.ExtraInfo {
		t.Error("SetExtraInfo did not stick")
	}
}

func TestDescriptorImprovePraiseOverridesRemark(t *testing.T) {
	d, _ := DescriptorFor(KindImprove)

	u, err := d.Decode(map[string]interface{}{
		"remark": "could be shorter",
		"praise": "nice variable names",
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	imp := u.(*Improve)
	if imp.Remark != "nice variable names" {
		t.Errorf("praise should replace remark, got %q", imp.Remark)
	}
	if !d.Positive(u) {
		t.Error("praise-bearing unit is positive")
	}
}

func TestDescriptorScoring(t *testing.T) {
	scored := map[Kind]bool{
		KindOutcome:    true,
		KindImprove:    false,
		KindUnderstand: false,
		KindAnnotation: true,
		KindAgain:      true,
	}
	for kind, want := range scored {
		d, err := DescriptorFor(kind)
		if err != nil {
			t.Fatalf("DescriptorFor(%s): %v", kind, err)
		}
		if d.Scored != want {
			t.Errorf("%s scored = %v, want %v", kind, d.Scored, want)
		}
	}

	if _, err := DescriptorFor(KindCustom); err == nil {
		t.Error("custom kind should have no structured descriptor")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError("error in feedback request", cause)
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through errors.Is")
	}
	if err.Error() != "error in feedback request: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}
