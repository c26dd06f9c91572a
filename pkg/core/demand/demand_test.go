package demand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

func ptr(f float64) *float64 {
	return &f
}

func baseInput() Input {
	return Input{
		Locations: map[string]model.Location{
			"loc-a":   {ID: "loc-a", Name: "Site A", Active: true},
			"loc-b":   {ID: "loc-b", Name: "Site B", Active: true},
			"loc-blk": {ID: "loc-blk", Name: "Bloc opératoire", Active: true},
		},
		Doctors: map[string]model.Doctor{
			"doc-1": {ID: "doc-1", Active: true},
			"doc-2": {ID: "doc-2", Active: true},
			"doc-3": {ID: "doc-3", Active: true},
		},
		Roles: map[string]model.SurgicalRole{
			"role-instr": {ID: "role-instr", Active: true},
			"role-circ":  {ID: "role-circ", Active: true},
		},
	}
}

func newTestCalculator(defaultCoefficient *float64) *Calculator {
	return NewCalculator(defaultCoefficient, []string{"Bloc opératoire"}, zap.NewNop())
}

func TestLocationNeeds_SumThenCeiling(t *testing.T) {
	in := baseInput()
	in.LocationDemand = []model.LocationDemand{
		{LocationID: "loc-a", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(1.2)},
		{LocationID: "loc-a", DoctorID: "doc-2", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(1.2)},
	}

	needs, err := newTestCalculator(ptr(1.2)).LocationNeeds(in)
	require.NoError(t, err)
	require.Len(t, needs, 1)

	// 1.2 + 1.2 = 2.4 rounds up to 3, not ceil(1.2) + ceil(1.2) = 4 and not 1 + 1 = 2
	assert.Equal(t, 3, needs[0].RequiredCount)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, needs[0].DoctorIDs)
	assert.Equal(t, KindLocation, needs[0].Kind)
}

func TestLocationNeeds_FloatNoiseDoesNotOverProvision(t *testing.T) {
	in := baseInput()
	for _, doctor := range []string{"doc-1", "doc-2", "doc-3", "doc-1", "doc-2"} {
		in.LocationDemand = append(in.LocationDemand, model.LocationDemand{
			LocationID: "loc-a", DoctorID: doctor, Date: "2025-01-06", Period: model.PeriodAfternoon, Coefficient: ptr(1.2),
		})
	}

	needs, err := newTestCalculator(nil).LocationNeeds(in)
	require.NoError(t, err)
	require.Len(t, needs, 1)
	assert.Equal(t, 6, needs[0].RequiredCount)
	assert.Len(t, needs[0].DoctorIDs, 3)
}

func TestLocationNeeds_MonotonicInDoctors(t *testing.T) {
	coefficients := []float64{0.4, 1.2, 0.7, 2.0, 1.1}

	in := baseInput()
	previous := 0
	for i, coefficient := range coefficients {
		in.LocationDemand = append(in.LocationDemand, model.LocationDemand{
			LocationID: "loc-a", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(coefficient),
		})

		needs, err := newTestCalculator(nil).LocationNeeds(in)
		require.NoError(t, err)
		require.Len(t, needs, 1)

		required := needs[0].RequiredCount
		assert.GreaterOrEqual(t, required, previous, "adding doctor %d must not reduce demand", i)
		for _, c := range coefficients[:i+1] {
			assert.GreaterOrEqual(t, required, RequiredCount(c))
		}
		previous = required
	}
}

func TestLocationNeeds_DefaultCoefficient(t *testing.T) {
	in := baseInput()
	in.LocationDemand = []model.LocationDemand{
		{LocationID: "loc-a", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning},
	}

	needs, err := newTestCalculator(ptr(1.2)).LocationNeeds(in)
	require.NoError(t, err)
	require.Len(t, needs, 1)
	assert.Equal(t, 2, needs[0].RequiredCount)
}

func TestLocationNeeds_MissingCoefficientWithoutDefaultFails(t *testing.T) {
	in := baseInput()
	in.LocationDemand = []model.LocationDemand{
		{LocationID: "loc-a", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning},
	}

	_, err := newTestCalculator(nil).LocationNeeds(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCoefficient)
}

func TestLocationNeeds_SkipsStaleRowsAndSurgicalBlock(t *testing.T) {
	in := baseInput()
	in.LocationDemand = []model.LocationDemand{
		{LocationID: "loc-a", DoctorID: "doc-gone", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(1)},
		{LocationID: "loc-closed", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(1)},
		{LocationID: "loc-blk", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(1)},
		{LocationID: "loc-b", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodMorning, Coefficient: ptr(1)},
	}

	needs, err := newTestCalculator(nil).LocationNeeds(in)
	require.NoError(t, err)
	require.Len(t, needs, 1)
	assert.Equal(t, "loc-b", needs[0].LocationID)
}

func TestLocationNeeds_FullDayRowCoversBothHalves(t *testing.T) {
	in := baseInput()
	in.LocationDemand = []model.LocationDemand{
		{LocationID: "loc-a", DoctorID: "doc-1", Date: "2025-01-06", Period: model.PeriodFullDay, Coefficient: ptr(1.2)},
		{LocationID: "loc-a", DoctorID: "doc-2", Date: "2025-01-06", Period: model.PeriodAfternoon, Coefficient: ptr(1.2)},
	}

	needs, err := newTestCalculator(nil).Calculate(in)
	require.NoError(t, err)
	require.Len(t, needs, 2)
	assert.Equal(t, model.PeriodMorning, needs[0].Period)
	assert.Equal(t, 2, needs[0].RequiredCount)
	assert.Equal(t, model.PeriodAfternoon, needs[1].Period)
	assert.Equal(t, 3, needs[1].RequiredCount)
}

func TestLocationNeeds_InvalidPeriod(t *testing.T) {
	in := baseInput()
	in.LocationDemand = []model.LocationDemand{
		{LocationID: "loc-a", DoctorID: "doc-1", Date: "2025-01-06", Period: "evening", Coefficient: ptr(1)},
	}

	_, err := newTestCalculator(nil).LocationNeeds(in)
	assert.Error(t, err)
}

func TestSurgicalNeeds_OnePerSessionRole(t *testing.T) {
	in := baseInput()
	in.Sessions = []model.SurgicalSession{
		{ID: "sess-1", Date: "2025-01-06", Period: model.PeriodMorning, SessionTypeID: "type-std", LocationID: "loc-blk", RoomID: "room-1", DoctorID: "doc-1"},
		{ID: "sess-2", Date: "2025-01-06", Period: model.PeriodMorning, SessionTypeID: "type-std", LocationID: "loc-blk", RoomID: "room-2", DoctorID: "doc-gone"},
	}
	in.SessionTypeRoles = []model.SessionTypeRole{
		{SessionTypeID: "type-std", RoleID: "role-instr", Count: 1},
		{SessionTypeID: "type-std", RoleID: "role-circ", Count: 2},
		{SessionTypeID: "type-std", RoleID: "role-retired", Count: 1},
	}

	needs := newTestCalculator(nil).SurgicalNeeds(in)
	require.Len(t, needs, 2)

	for _, need := range needs {
		assert.Equal(t, KindSurgicalRole, need.Kind)
		assert.Equal(t, "sess-1", need.SessionID)
		assert.Equal(t, "room-1", need.RoomID)
		assert.Equal(t, []string{"doc-1"}, need.DoctorIDs)
	}
	assert.Equal(t, "role-instr", needs[0].RoleID)
	assert.Equal(t, 1, needs[0].RequiredCount)
	assert.Equal(t, "role-circ", needs[1].RoleID)
	assert.Equal(t, 2, needs[1].RequiredCount)
}

func TestSurgicalNeeds_SkipsSessionsAtInactiveLocations(t *testing.T) {
	in := baseInput()
	in.Sessions = []model.SurgicalSession{
		{ID: "sess-closed", Date: "2025-01-06", Period: model.PeriodMorning, SessionTypeID: "type-std", LocationID: "loc-closed", DoctorID: "doc-1"},
		{ID: "sess-nowhere", Date: "2025-01-06", Period: model.PeriodMorning, SessionTypeID: "type-std", DoctorID: "doc-2"},
		{ID: "sess-open", Date: "2025-01-06", Period: model.PeriodAfternoon, SessionTypeID: "type-std", LocationID: "loc-blk", DoctorID: "doc-3"},
	}
	in.SessionTypeRoles = []model.SessionTypeRole{
		{SessionTypeID: "type-std", RoleID: "role-instr", Count: 1},
	}

	needs := newTestCalculator(nil).SurgicalNeeds(in)
	require.Len(t, needs, 1)
	assert.Equal(t, "sess-open", needs[0].SessionID)
	assert.Equal(t, "loc-blk", needs[0].LocationID)
}

func TestNeedKey(t *testing.T) {
	location := Need{Kind: KindLocation, LocationID: "loc-a", Date: "2025-01-06", Period: model.PeriodMorning}
	surgical := Need{Kind: KindSurgicalRole, SessionID: "sess-1", RoleID: "role-instr"}

	assert.Equal(t, "L|loc-a|2025-01-06|morning", location.Key())
	assert.Equal(t, "S|sess-1|role-instr", surgical.Key())
}

func TestForDate(t *testing.T) {
	needs := []Need{{Date: "2025-01-06"}, {Date: "2025-01-07"}, {Date: "2025-01-06"}}
	assert.Len(t, ForDate(needs, "2025-01-06"), 2)
	assert.Empty(t, ForDate(needs, "2025-01-08"))
}
