package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/validate"
)

func TestValidateGPS_Accepted(t *testing.T) {
	rec, err := validate.Validate(model.FamilyGPS, []byte(`{"deviceId":"A","lat":-12.0464,"lng":-77.0428,"timestamp":"2024-01-15T10:30:00Z","speed":42}`))
	require.NoError(t, err)
	assert.Equal(t, "A", rec.ID)
	assert.Equal(t, model.FamilyGPS, rec.Family)
	assert.InDelta(t, -12.0464, rec.Lat, 0.0001)
}

func TestValidateGPS_RejectsOutOfRangeLat(t *testing.T) {
	_, err := validate.Validate(model.FamilyGPS, []byte(`{"deviceId":"A","lat":999,"lng":0,"timestamp":"2024-01-15T10:30:00Z"}`))
	require.Error(t, err)
	var rej validate.Rejected
	require.ErrorAs(t, err, &rej)
}

func TestValidateGPS_RejectsEmptyDeviceID(t *testing.T) {
	_, err := validate.Validate(model.FamilyGPS, []byte(`{"deviceId":"","lat":1,"lng":1,"timestamp":"2024-01-15T10:30:00Z"}`))
	require.Error(t, err)
}

func TestValidateGPS_RejectsBadTimestamp(t *testing.T) {
	_, err := validate.Validate(model.FamilyGPS, []byte(`{"deviceId":"A","lat":1,"lng":1,"timestamp":"not-a-time"}`))
	require.Error(t, err)
}

func TestValidateMobile_Accepted(t *testing.T) {
	rec, err := validate.Validate(model.FamilyMobile, []byte(`{"userId":"u1","lat":10,"lng":20,"timestamp":"2024-01-15T10:30:00Z","name":"Jane","email":"jane@example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec.Name)
	assert.Equal(t, "jane@example.com", rec.Email)
}

func TestValidateMobile_RejectsOutOfRangeLng(t *testing.T) {
	_, err := validate.Validate(model.FamilyMobile, []byte(`{"userId":"u1","lat":10,"lng":200,"timestamp":"2024-01-15T10:30:00Z"}`))
	require.Error(t, err)
}

func TestValidate_UnknownFamily(t *testing.T) {
	_, err := validate.Validate(model.Family("carrier-pigeon"), []byte(`{}`))
	require.Error(t, err)
}
