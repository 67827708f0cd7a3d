package wizard

import (
	"reflect"
	"testing"
)

func run(s State, evs ...Event) State {
	for _, e := range evs {
		s = Transition(s, e)
	}
	return s
}

func sel(t EventType, v string) Event { return Event{Type: t, Value: v} }

// reach 返回到达指定步骤的状态（物业+出售+未来可用路径，雇佣类型走求职路径）
func reach(t *testing.T, step Step) State {
	t.Helper()
	paths := map[Step][]Event{
		StepCategory:            nil,
		StepIntent:              {sel(SelectCategory, "property")},
		StepTransactionType:     {sel(SelectCategory, "property"), sel(SelectIntent, "offer")},
		StepEmploymentType:      {sel(SelectCategory, "job"), sel(SelectIntent, "offer")},
		StepAvailability:        {sel(SelectCategory, "property"), sel(SelectIntent, "offer"), sel(SelectTransactionType, "sale")},
		StepAvailabilityDetails: {sel(SelectCategory, "property"), sel(SelectIntent, "offer"), sel(SelectTransactionType, "sale"), sel(SelectAvailability, "future")},
		StepLocation: {sel(SelectCategory, "property"), sel(SelectIntent, "offer"), sel(SelectTransactionType, "sale"),
			sel(SelectAvailability, "future"), {Type: Submit, Date: "2026-11-01"}},
		StepDetails: {sel(SelectCategory, "property"), sel(SelectIntent, "offer"), sel(SelectTransactionType, "sale"),
			sel(SelectAvailability, "future"), {Type: Submit, Date: "2026-11-01"}, {Type: FinishDrawing, LayerID: "L1"}},
		StepComplete: {sel(SelectCategory, "property"), sel(SelectIntent, "offer"), sel(SelectTransactionType, "sale"),
			sel(SelectAvailability, "future"), {Type: Submit, Date: "2026-11-01"}, {Type: FinishDrawing, LayerID: "L1"},
			{Type: SubmitDetails, Details: &Details{PropertyType: "apartment"}}},
	}
	s := run(Initial(), paths[step]...)
	if s.Step != step {
		t.Fatalf("reached %s, want %s", s.Step, step)
	}
	return s
}

func TestIntentBranchesOnCategory(t *testing.T) {
	s := run(Initial(), sel(SelectCategory, "property"), sel(SelectIntent, "offer"))
	if s.Step != StepTransactionType {
		t.Errorf("property -> %s, want transaction_type", s.Step)
	}
	s = run(Initial(), sel(SelectCategory, "job"), sel(SelectIntent, "offer"))
	if s.Step != StepEmploymentType {
		t.Errorf("job -> %s, want employment_type", s.Step)
	}
}

func TestAvailabilityDetailsPredicate(t *testing.T) {
	cases := []struct {
		category, intent, typ string
		typEvent              EventType
		availability          string
		want                  Step
	}{
		{"property", "search", "sale", SelectTransactionType, "future", StepLocation},
		{"property", "offer", "rent", SelectTransactionType, "future", StepAvailabilityDetails},
		{"property", "offer", "rent", SelectTransactionType, "now", StepLocation},
		{"job", "offer", "full_time", SelectEmploymentType, "future", StepAvailabilityDetails},
		{"job", "search", "part_time", SelectEmploymentType, "future", StepAvailabilityDetails},
		{"job", "search", "part_time", SelectEmploymentType, "now", StepLocation},
	}
	for _, c := range cases {
		s := run(Initial(), sel(SelectCategory, c.category), sel(SelectIntent, c.intent), sel(c.typEvent, c.typ))
		if s.Step != StepAvailability {
			t.Fatalf("%+v: reached %s", c, s.Step)
		}
		s = Transition(s, sel(SelectAvailability, c.availability))
		if s.Step != c.want {
			t.Errorf("%s/%s/%s: got %s, want %s", c.category, c.intent, c.availability, s.Step, c.want)
		}
	}
}

func TestCloseFromEveryStep(t *testing.T) {
	if len(Steps) != 9 {
		t.Fatalf("steps = %d", len(Steps))
	}
	for _, step := range Steps {
		s := reach(t, step)
		if got := Transition(s, Event{Type: Close}); !reflect.DeepEqual(got, Initial()) {
			t.Errorf("CLOSE from %s = %+v, want initial", step, got)
		}
	}
}

func TestInvalidEventLeavesStateUnchanged(t *testing.T) {
	s := reach(t, StepDetails)
	for _, e := range []Event{
		sel(SelectCategory, "property"),
		sel(SelectAvailability, "now"),
		{Type: Submit},
		{Type: FinishPositioning},
		{Type: "UNKNOWN"},
	} {
		if got := Transition(s, e); !reflect.DeepEqual(got, s) {
			t.Errorf("%s changed state: %+v", e.Type, got)
		}
	}
	c := Initial()
	if got := Transition(c, sel(SelectCategory, "vehicle")); !reflect.DeepEqual(got, c) {
		t.Errorf("invalid category accepted: %+v", got)
	}
}

func TestCompleteOnlyAcceptsClose(t *testing.T) {
	s := reach(t, StepComplete)
	if got := Transition(s, Event{Type: Back}); !reflect.DeepEqual(got, s) {
		t.Errorf("BACK from complete changed state: %+v", got)
	}
	if got := Transition(s, Event{Type: SubmitDetails}); !reflect.DeepEqual(got, s) {
		t.Errorf("SUBMIT_DETAILS from complete changed state")
	}
}

func TestBackClearsCollectedFields(t *testing.T) {
	if got := Transition(reach(t, StepIntent), Event{Type: Back}); !reflect.DeepEqual(got, Initial()) {
		t.Errorf("BACK from intent = %+v", got)
	}
	got := Transition(reach(t, StepTransactionType), Event{Type: Back})
	if got.Step != StepIntent || got.Category != Property || got.Intent != "" {
		t.Errorf("BACK from transaction_type = %+v", got)
	}
	got = Transition(reach(t, StepAvailability), Event{Type: Back})
	if got.Step != StepTransactionType || got.TransactionType != "" || got.Intent != Offer {
		t.Errorf("BACK from availability = %+v", got)
	}
	got = Transition(reach(t, StepAvailabilityDetails), Event{Type: Back})
	if got.Step != StepAvailability || got.Availability != "" {
		t.Errorf("BACK from availability_details = %+v", got)
	}
	if got := Transition(Initial(), Event{Type: Back}); !reflect.DeepEqual(got, Initial()) {
		t.Errorf("BACK from category = %+v", got)
	}
}

func TestBackFromLocationRecomputesPredecessor(t *testing.T) {
	s := reach(t, StepLocation)
	got := Transition(s, Event{Type: Back})
	if got.Step != StepAvailabilityDetails || got.AvailableFrom != "" || got.Availability != Future {
		t.Errorf("property offer future: %+v", got)
	}

	s = run(Initial(), sel(SelectCategory, "property"), sel(SelectIntent, "search"),
		sel(SelectTransactionType, "rent"), sel(SelectAvailability, "future"))
	if s.Step != StepLocation {
		t.Fatalf("reached %s", s.Step)
	}
	got = Transition(s, Event{Type: Back})
	if got.Step != StepAvailability || got.Availability != "" {
		t.Errorf("property search future: %+v", got)
	}
}

func TestLocationLayerEvents(t *testing.T) {
	s := reach(t, StepLocation)
	if got := Transition(s, Event{Type: FinishPositioning}); got.Step != StepLocation {
		t.Errorf("positioning without upload moved to %s", got.Step)
	}
	if got := Transition(s, Event{Type: FinishDrawing}); got.Step != StepLocation {
		t.Errorf("drawing without layer id moved to %s", got.Step)
	}

	f := &UploadedFile{Name: "plot.geojson", Size: 120, LayerID: "U1"}
	up := Transition(s, Event{Type: FinishFileUpload, File: f})
	if up.Step != StepLocation || up.AssociatedLayerID != "U1" || up.UploadedFile == nil {
		t.Fatalf("upload: %+v", up)
	}
	if up.UploadedFile == f {
		t.Error("transition must copy the file reference")
	}
	if s.UploadedFile != nil {
		t.Error("input state mutated")
	}
	det := Transition(up, Event{Type: FinishPositioning})
	if det.Step != StepDetails || !det.UploadBacked() {
		t.Fatalf("positioning: %+v", det)
	}

	// 上传图层：BACK 回到位置步骤并保留引用
	back := Transition(det, Event{Type: Back})
	if back.Step != StepLocation || back.AssociatedLayerID != "U1" || back.UploadedFile == nil {
		t.Errorf("BACK from details (upload) = %+v", back)
	}

	// 绘制图层：BACK 清除引用
	drawn := Transition(up, Event{Type: FinishDrawing, LayerID: "D1"})
	if drawn.UploadedFile != nil || drawn.AssociatedLayerID != "D1" {
		t.Fatalf("drawing must replace upload: %+v", drawn)
	}
	back = Transition(drawn, Event{Type: Back})
	if back.Step != StepLocation || back.AssociatedLayerID != "" {
		t.Errorf("BACK from details (drawing) = %+v", back)
	}

	// BACK from location 清除任何图层引用
	if got := Transition(up, Event{Type: Back}); got.AssociatedLayerID != "" || got.UploadedFile != nil {
		t.Errorf("BACK from location kept layer: %+v", got)
	}
}
