package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// UserInfoView is the medical profile with every list defaulted to
// empty. Consumers can range over the lists without nil checks.
type UserInfoView struct {
	Name              string   `json:"name,omitempty"`
	BloodType         string   `json:"blood_type,omitempty"`
	Age               int      `json:"age,omitempty"`
	MedicalConditions []string `json:"medical_conditions"`
	Allergies         []string `json:"allergies"`
	Medications       []string `json:"medications"`
	Notes             string   `json:"notes,omitempty"`
}

// SessionView is the normalized, in-memory shape of a session document
// after wire decoding: native numerics and times, no type envelopes,
// no absent collections.
type SessionView struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Active    bool         `json:"active"`
	Location  *Location    `json:"location,omitempty"`
	Info      UserInfoView `json:"user_info"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewSessionView normalizes a decoded document into the view model.
func NewSessionView(s *SOSSession) SessionView {
	view := SessionView{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		Active:    s.Active,
		Location:  s.Location,
		UpdatedAt: s.UpdatedAt,
		Info: UserInfoView{
			MedicalConditions: []string{},
			Allergies:         []string{},
			Medications:       []string{},
		},
	}
	if s.UserInfo != nil {
		view.Info.Name = s.UserInfo.Name
		view.Info.BloodType = s.UserInfo.BloodType
		view.Info.Age = s.UserInfo.Age
		view.Info.Notes = s.UserInfo.Notes
		if len(s.UserInfo.MedicalConditions) > 0 {
			view.Info.MedicalConditions = s.UserInfo.MedicalConditions
		}
		if len(s.UserInfo.Allergies) > 0 {
			view.Info.Allergies = s.UserInfo.Allergies
		}
		if len(s.UserInfo.Medications) > 0 {
			view.Info.Medications = s.UserInfo.Medications
		}
	}
	return view
}

// DecodeSOSSession decodes a raw session document, tolerating the type
// drift the mobile writers produce: coordinates arrive as double,
// int32 or int64 depending on the client, and timestamps arrive as
// BSON datetimes or as millisecond numbers. Absent optional fields
// decode to zero values, never to an error.
func DecodeSOSSession(raw bson.Raw) (*SOSSession, error) {
	elements, err := raw.Elements()
	if err != nil {
		return nil, fmt.Errorf("invalid session document: %w", err)
	}

	s := &SOSSession{}
	for _, el := range elements {
		val := el.Value()
		switch el.Key() {
		case "_id":
			if oid, ok := val.ObjectIDOK(); ok {
				s.ID = oid
			}
		case "session_id":
			s.SessionID, _ = val.StringValueOK()
		case "user_id":
			s.UserID, _ = val.StringValueOK()
		case "active":
			s.Active, _ = val.BooleanOK()
		case "access_token":
			s.AccessToken, _ = val.StringValueOK()
		case "location":
			if doc, ok := val.DocumentOK(); ok {
				s.Location = decodeLocation(doc)
			}
		case "user_info":
			if doc, ok := val.DocumentOK(); ok {
				s.UserInfo = decodeUserInfo(doc)
			}
		case "access_logs":
			if arr, ok := val.ArrayOK(); ok {
				s.AccessLogs = decodeAccessLogs(arr)
			}
		case "created_at":
			s.CreatedAt, _ = timeValue(val)
		case "updated_at":
			s.UpdatedAt, _ = timeValue(val)
		case "resolved_at":
			if t, ok := timeValue(val); ok {
				s.ResolvedAt = &t
			}
		}
	}
	return s, nil
}

func decodeLocation(doc bson.Raw) *Location {
	loc := &Location{}
	hasLat, hasLng := false, false
	for _, el := range rawElements(doc) {
		val := el.Value()
		switch el.Key() {
		case "latitude":
			loc.Latitude, hasLat = numberValue(val)
		case "longitude":
			loc.Longitude, hasLng = numberValue(val)
		case "accuracy":
			loc.Accuracy, _ = numberValue(val)
		case "timestamp":
			loc.Timestamp, _ = timeValue(val)
		}
	}
	if !hasLat || !hasLng {
		return nil
	}
	return loc
}

func decodeUserInfo(doc bson.Raw) *UserInfo {
	info := &UserInfo{}
	for _, el := range rawElements(doc) {
		val := el.Value()
		switch el.Key() {
		case "name":
			info.Name, _ = val.StringValueOK()
		case "blood_type":
			info.BloodType, _ = val.StringValueOK()
		case "age":
			if n, ok := numberValue(val); ok {
				info.Age = int(n)
			}
		case "medical_conditions":
			info.MedicalConditions = stringList(val)
		case "allergies":
			info.Allergies = stringList(val)
		case "medications":
			info.Medications = stringList(val)
		case "notes":
			info.Notes, _ = val.StringValueOK()
		}
	}
	return info
}

func decodeAccessLogs(arr bson.Raw) []AccessLog {
	var logs []AccessLog
	values, err := arr.Values()
	if err != nil {
		return nil
	}
	for _, v := range values {
		doc, ok := v.DocumentOK()
		if !ok {
			continue
		}
		entry := AccessLog{}
		for _, el := range rawElements(doc) {
			val := el.Value()
			switch el.Key() {
			case "timestamp":
				entry.Timestamp, _ = timeValue(val)
			case "type":
				entry.Type, _ = val.StringValueOK()
			case "has_token":
				entry.HasToken, _ = val.BooleanOK()
			}
		}
		logs = append(logs, entry)
	}
	return logs
}

func rawElements(doc bson.Raw) []bson.RawElement {
	elements, err := doc.Elements()
	if err != nil {
		return nil
	}
	return elements
}

// numberValue unwraps any BSON numeric envelope to a float64.
func numberValue(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Double:
		if f, ok := v.DoubleOK(); ok {
			return f, true
		}
	case bsontype.Int32:
		if n, ok := v.Int32OK(); ok {
			return float64(n), true
		}
	case bsontype.Int64:
		if n, ok := v.Int64OK(); ok {
			return float64(n), true
		}
	}
	return 0, false
}

// timeValue unwraps a BSON datetime or a numeric epoch-milliseconds
// value to a native time.
func timeValue(v bson.RawValue) (time.Time, bool) {
	if v.Type == bsontype.DateTime {
		if t, ok := v.TimeOK(); ok {
			return t, true
		}
	}
	if millis, ok := numberValue(v); ok && millis > 0 {
		return time.UnixMilli(int64(millis)).UTC(), true
	}
	return time.Time{}, false
}

func stringList(v bson.RawValue) []string {
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil
	}
	var out []string
	for _, item := range values {
		if s, ok := item.StringValueOK(); ok {
			out = append(out, s)
		}
	}
	return out
}

// MapState is the render state the map surface maintains across
// updates. The marker is created once and moved afterwards; the
// accuracy overlay only exists while a positive accuracy is known.
type MapState struct {
	CenterLatitude  float64 `json:"center_latitude"`
	CenterLongitude float64 `json:"center_longitude"`
	MarkerPlaced    bool    `json:"marker_placed"`
	AccuracyRadius  float64 `json:"accuracy_radius"` // 0 = overlay hidden
}

// Apply folds one view-model update into the render state.
func (m *MapState) Apply(view SessionView) {
	if view.Location == nil {
		return
	}
	m.CenterLatitude = view.Location.Latitude
	m.CenterLongitude = view.Location.Longitude
	m.MarkerPlaced = true
	if view.Location.Accuracy > 0 {
		m.AccuracyRadius = view.Location.Accuracy
	} else {
		m.AccuracyRadius = 0
	}
}
