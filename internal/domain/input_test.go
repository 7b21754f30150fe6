package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHourInput_Normalize(t *testing.T) {
	t.Run("valid range", func(t *testing.T) {
		for h := 0; h <= 23; h++ {
			got, err := HourOf(h).Normalize()
			require.NoError(t, err)
			assert.Equal(t, h, got)
		}
	})

	t.Run("out of range is a validation error", func(t *testing.T) {
		for _, h := range []int{-1, 24} {
			_, err := HourOf(h).Normalize()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.NotErrorIs(t, err, ErrType)
		}
	})

	t.Run("wrong type is a type error", func(t *testing.T) {
		for _, v := range []any{"1", 5.0, true, json.Number("5.5")} {
			_, err := HourFrom(v).Normalize()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrType, "value %v", v)
		}
	})

	t.Run("missing hour", func(t *testing.T) {
		_, err := HourFrom(nil).Normalize()
		assert.ErrorIs(t, err, ErrType)
	})

	t.Run("json integer accepted", func(t *testing.T) {
		got, err := HourFrom(json.Number("17")).Normalize()
		require.NoError(t, err)
		assert.Equal(t, 17, got)
	})
}

func TestDayInput_Normalize(t *testing.T) {
	t.Run("integer and name agree", func(t *testing.T) {
		for i, name := range []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"} {
			byName, err := DayNamed(name).Normalize()
			require.NoError(t, err)
			byIndex, err := DayOf(i).Normalize()
			require.NoError(t, err)
			assert.Equal(t, byIndex, byName)
		}
	})

	t.Run("name is case insensitive", func(t *testing.T) {
		a, err := DayNamed("MoNDaY").Normalize()
		require.NoError(t, err)
		b, err := DayNamed("mOndAy").Normalize()
		require.NoError(t, err)
		assert.Equal(t, 1, a)
		assert.Equal(t, a, b)
	})

	t.Run("out of range integer", func(t *testing.T) {
		for _, d := range []int{-1, 7} {
			_, err := DayOf(d).Normalize()
			assert.ErrorIs(t, err, ErrValidation)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := DayNamed("Yaladay").Normalize()
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("float is a type error", func(t *testing.T) {
		_, err := DayFrom(5.0).Normalize()
		assert.ErrorIs(t, err, ErrType)

		_, err = DayFrom(json.Number("5.0")).Normalize()
		assert.ErrorIs(t, err, ErrType)
	})

	t.Run("dynamic string and int", func(t *testing.T) {
		got, err := DayFrom("friday").Normalize()
		require.NoError(t, err)
		assert.Equal(t, 5, got)

		got, err = DayFrom(json.Number("3")).Normalize()
		require.NoError(t, err)
		assert.Equal(t, 3, got)
	})
}

func TestInputError_Message(t *testing.T) {
	_, err := HourOf(30).Normalize()
	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "hour", inputErr.Field)
	assert.Contains(t, err.Error(), "between 0 and 23")
}

func TestDayBinary(t *testing.T) {
	assert.Equal(t, 0, DayBinary(0))
	assert.Equal(t, 0, DayBinary(6))
	for d := 1; d <= 5; d++ {
		assert.Equal(t, 1, DayBinary(d))
	}
}

func TestWeekdayName(t *testing.T) {
	assert.Equal(t, "sunday", WeekdayName(0))
	assert.Equal(t, "saturday", WeekdayName(6))
	assert.Empty(t, WeekdayName(7))
}
