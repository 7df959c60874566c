package models

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestDecodeSOSSessionFull(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	raw, err := bson.Marshal(bson.M{
		"session_id":   "sess-1",
		"user_id":      "user-1",
		"active":       true,
		"access_token": "abc123",
		"location": bson.M{
			"latitude":  1.0,
			"longitude": 2.0,
			"accuracy":  15.0,
			"timestamp": ts,
		},
		"user_info": bson.M{
			"name":               "Jamie",
			"blood_type":         "O+",
			"age":                34,
			"medical_conditions": bson.A{"asthma"},
			"allergies":          bson.A{"penicillin"},
			"medications":        bson.A{"salbutamol"},
			"notes":              "inhaler in backpack",
		},
		"access_logs": bson.A{
			bson.M{"timestamp": ts, "type": "link_opened", "has_token": true},
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	s, err := DecodeSOSSession(bson.Raw(raw))
	if err != nil {
		t.Fatalf("DecodeSOSSession failed: %v", err)
	}

	if s.SessionID != "sess-1" || s.UserID != "user-1" || !s.Active {
		t.Errorf("unexpected header fields: %+v", s)
	}
	if s.AccessToken != "abc123" {
		t.Errorf("expected token abc123, got %q", s.AccessToken)
	}
	if s.Location == nil {
		t.Fatal("expected location")
	}
	if s.Location.Latitude != 1.0 || s.Location.Longitude != 2.0 {
		t.Errorf("unexpected coordinates: %+v", s.Location)
	}
	if s.Location.Accuracy != 15.0 {
		t.Errorf("expected accuracy 15, got %v", s.Location.Accuracy)
	}
	if !s.Location.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, s.Location.Timestamp)
	}
	if s.UserInfo == nil || s.UserInfo.Name != "Jamie" || s.UserInfo.Age != 34 {
		t.Errorf("unexpected user info: %+v", s.UserInfo)
	}
	if len(s.AccessLogs) != 1 || s.AccessLogs[0].Type != "link_opened" || !s.AccessLogs[0].HasToken {
		t.Errorf("unexpected access logs: %+v", s.AccessLogs)
	}
}

func TestDecodeSOSSessionNumericEnvelopes(t *testing.T) {
	// Mobile writers produce int32/int64 coordinates and
	// millisecond-number timestamps; decoding must unwrap all of them.
	millis := int64(1773480413000)
	raw, err := bson.Marshal(bson.M{
		"session_id": "sess-2",
		"active":     true,
		"location": bson.M{
			"latitude":  int32(7),
			"longitude": int64(81),
			"accuracy":  int32(20),
			"timestamp": millis,
		},
		"user_info": bson.M{
			"age": int64(40),
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	s, err := DecodeSOSSession(bson.Raw(raw))
	if err != nil {
		t.Fatalf("DecodeSOSSession failed: %v", err)
	}

	if s.Location == nil {
		t.Fatal("expected location")
	}
	if s.Location.Latitude != 7.0 || s.Location.Longitude != 81.0 {
		t.Errorf("expected (7, 81), got (%v, %v)", s.Location.Latitude, s.Location.Longitude)
	}
	if s.Location.Accuracy != 20.0 {
		t.Errorf("expected accuracy 20, got %v", s.Location.Accuracy)
	}
	if got := s.Location.Timestamp.UnixMilli(); got != millis {
		t.Errorf("expected %d millis, got %d", millis, got)
	}
	if s.UserInfo.Age != 40 {
		t.Errorf("expected age 40, got %d", s.UserInfo.Age)
	}
}

func TestDecodeSOSSessionMissingOptionals(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"session_id": "sess-3",
		"user_id":    "user-3",
		"active":     false,
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	s, err := DecodeSOSSession(bson.Raw(raw))
	if err != nil {
		t.Fatalf("DecodeSOSSession failed: %v", err)
	}

	if s.AccessToken != "" {
		t.Errorf("expected no token, got %q", s.AccessToken)
	}
	if s.HasAccessToken() {
		t.Error("HasAccessToken should be false for absent field")
	}
	if s.Location != nil {
		t.Errorf("expected nil location, got %+v", s.Location)
	}
	if s.UserInfo != nil {
		t.Errorf("expected nil user info, got %+v", s.UserInfo)
	}
	if s.AccessLogs != nil {
		t.Errorf("expected nil access logs, got %+v", s.AccessLogs)
	}
}

func TestDecodeSOSSessionPartialLocationDropped(t *testing.T) {
	// A location with only one coordinate is unusable; the view model
	// must treat it as absent rather than render a half point.
	raw, err := bson.Marshal(bson.M{
		"session_id": "sess-4",
		"location":   bson.M{"latitude": 1.5},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	s, err := DecodeSOSSession(bson.Raw(raw))
	if err != nil {
		t.Fatalf("DecodeSOSSession failed: %v", err)
	}
	if s.Location != nil {
		t.Errorf("expected partial location dropped, got %+v", s.Location)
	}
}

func TestNewSessionViewDefaultsLists(t *testing.T) {
	view := NewSessionView(&SOSSession{SessionID: "sess-5", Active: true})

	if view.Info.MedicalConditions == nil || len(view.Info.MedicalConditions) != 0 {
		t.Errorf("expected empty medical conditions, got %#v", view.Info.MedicalConditions)
	}
	if view.Info.Allergies == nil || len(view.Info.Allergies) != 0 {
		t.Errorf("expected empty allergies, got %#v", view.Info.Allergies)
	}
	if view.Info.Medications == nil || len(view.Info.Medications) != 0 {
		t.Errorf("expected empty medications, got %#v", view.Info.Medications)
	}
}

func TestNewSessionViewCarriesProfile(t *testing.T) {
	view := NewSessionView(&SOSSession{
		SessionID: "sess-6",
		UserInfo: &UserInfo{
			Name:        "Jamie",
			BloodType:   "AB-",
			Medications: []string{"warfarin"},
		},
	})

	if view.Info.Name != "Jamie" || view.Info.BloodType != "AB-" {
		t.Errorf("unexpected profile: %+v", view.Info)
	}
	if len(view.Info.Medications) != 1 || view.Info.Medications[0] != "warfarin" {
		t.Errorf("unexpected medications: %#v", view.Info.Medications)
	}
	if len(view.Info.Allergies) != 0 {
		t.Errorf("expected empty allergies, got %#v", view.Info.Allergies)
	}
}

func TestMapStateApply(t *testing.T) {
	state := MapState{}

	// No location: nothing changes.
	state.Apply(SessionView{})
	if state.MarkerPlaced {
		t.Error("marker must not appear without a coordinate")
	}

	// First coordinate creates the marker and the accuracy overlay.
	state.Apply(SessionView{Location: &Location{Latitude: 1.0, Longitude: 2.0, Accuracy: 15}})
	if !state.MarkerPlaced {
		t.Error("expected marker after first coordinate")
	}
	if state.CenterLatitude != 1.0 || state.CenterLongitude != 2.0 {
		t.Errorf("expected center (1,2), got (%v,%v)", state.CenterLatitude, state.CenterLongitude)
	}
	if state.AccuracyRadius != 15 {
		t.Errorf("expected accuracy radius 15, got %v", state.AccuracyRadius)
	}

	// Later coordinate moves the marker; zero accuracy hides the overlay.
	state.Apply(SessionView{Location: &Location{Latitude: 3.0, Longitude: 4.0}})
	if !state.MarkerPlaced {
		t.Error("marker must persist across moves")
	}
	if state.CenterLatitude != 3.0 || state.CenterLongitude != 4.0 {
		t.Errorf("expected center (3,4), got (%v,%v)", state.CenterLatitude, state.CenterLongitude)
	}
	if state.AccuracyRadius != 0 {
		t.Errorf("expected overlay hidden, got radius %v", state.AccuracyRadius)
	}

	// An update without a location keeps the last render.
	state.Apply(SessionView{})
	if state.CenterLatitude != 3.0 || !state.MarkerPlaced {
		t.Error("locationless update must not clear the marker")
	}
}
