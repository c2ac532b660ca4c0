package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestNextDate(t *testing.T) {
	_, ok := NextDate(date(2025, 1, 15), TypeUnica)
	require.False(t, ok)

	next, ok := NextDate(date(2025, 1, 15), TypeMensal)
	require.True(t, ok)
	require.Equal(t, date(2025, 2, 15), next)

	next, _ = NextDate(date(2025, 1, 15), TypeTrimestral)
	require.Equal(t, date(2025, 4, 15), next)

	next, _ = NextDate(date(2025, 1, 15), TypeAnual)
	require.Equal(t, date(2026, 1, 15), next)

	next, _ = NextDate(date(2024, 2, 29), TypeAnual)
	require.Equal(t, date(2025, 2, 28), next)
}

func TestNextDateClampsMonthEnd(t *testing.T) {
	next, ok := NextDate(date(2025, 1, 31), TypeMensal)
	require.True(t, ok)
	require.Equal(t, date(2025, 2, 28), next)

	next, _ = NextDate(date(2024, 1, 31), TypeMensal)
	require.Equal(t, date(2024, 2, 29), next)

	next, _ = NextDate(date(2025, 11, 30), TypeTrimestral)
	require.Equal(t, date(2026, 2, 28), next)
}

func TestNextDateMonthEndPolicyForEveryMonth(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		start := date(2025, m, 1).AddDate(0, 1, -1) // last day of month m
		next, ok := NextDate(start, TypeMensal)
		require.True(t, ok)

		target := date(2025, m+1, 1)
		lastOfTarget := target.AddDate(0, 1, -1).Day()
		wantDay := start.Day()
		if wantDay > lastOfTarget {
			wantDay = lastOfTarget
		}
		require.Equal(t, target.Month(), next.Month(), "start %s", start.Format("2006-01-02"))
		require.Equal(t, wantDay, next.Day(), "start %s", start.Format("2006-01-02"))
	}
}

func TestGenerateInstallmentDatesMonthly(t *testing.T) {
	dates, err := GenerateInstallmentDates(date(2025, 1, 15), TypeMensal, 12)
	require.NoError(t, err)
	require.Len(t, dates, 12)
	require.Equal(t, date(2025, 1, 15), dates[0])
	require.Equal(t, date(2025, 12, 15), dates[11])
	for i := 1; i < len(dates); i++ {
		next, _ := NextDate(dates[i-1], TypeMensal)
		require.Equal(t, next, dates[i])
	}
}

func TestGenerateInstallmentDatesChainsNextDate(t *testing.T) {
	dates, err := GenerateInstallmentDates(date(2025, 1, 31), TypeMensal, 4)
	require.NoError(t, err)
	require.Equal(t, []time.Time{
		date(2025, 1, 31),
		date(2025, 2, 28),
		date(2025, 3, 28),
		date(2025, 4, 28),
	}, dates)

	current := date(2025, 1, 31)
	for i, want := range dates {
		require.Equal(t, current, want, "installment %d", i)
		current, _ = NextDate(current, TypeMensal)
	}
}

func TestGenerateInstallmentDatesRejectsBadInput(t *testing.T) {
	_, err := GenerateInstallmentDates(date(2025, 1, 1), TypeUnica, 3)
	require.ErrorIs(t, err, ErrSingleOccurrence)

	_, err = GenerateInstallmentDates(date(2025, 1, 1), TypeMensal, 0)
	require.Error(t, err)

	_, err = GenerateInstallmentDates(time.Time{}, TypeMensal, 2)
	require.Error(t, err)
}

func TestShouldGenerateNext(t *testing.T) {
	next := ptr(date(2025, 3, 10))
	today := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)

	require.True(t, ShouldGenerateNext(TypeMensal, StatusAtiva, next, nil, today))
	require.False(t, ShouldGenerateNext(TypeUnica, StatusAtiva, next, nil, today))
	require.False(t, ShouldGenerateNext(TypeMensal, StatusPausada, next, nil, today))
	require.False(t, ShouldGenerateNext(TypeMensal, StatusConcluida, next, nil, today))
	require.False(t, ShouldGenerateNext(TypeMensal, StatusAtiva, nil, nil, today))
	require.False(t, ShouldGenerateNext(TypeMensal, StatusAtiva, next, nil, date(2025, 3, 9)))
	require.False(t, ShouldGenerateNext(TypeMensal, StatusAtiva, next, ptr(date(2025, 3, 9)), today))
	require.True(t, ShouldGenerateNext(TypeMensal, StatusAtiva, next, ptr(date(2025, 3, 10)), today))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{Type: TypeUnica}.Validate())
	require.NoError(t, Config{Type: TypeMensal, Count: 3, StartDate: date(2025, 1, 1)}.Validate())
	require.Error(t, Config{Type: TypeMensal}.Validate())
	require.Error(t, Config{Type: "semanal", Count: 1, StartDate: date(2025, 1, 1)}.Validate())
	require.Error(t, Config{Type: TypeAnual, Count: 1, StartDate: date(2025, 1, 1), EndDate: ptr(date(2024, 1, 1))}.Validate())
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("")
	require.NoError(t, err)
	require.Equal(t, TypeUnica, typ)

	typ, err = ParseType("trimestral")
	require.NoError(t, err)
	require.Equal(t, TypeTrimestral, typ)

	_, err = ParseType("semanal")
	require.Error(t, err)
}

func TestOccurrenceAtMatchesGeneratedSchedule(t *testing.T) {
	start := date(2025, 1, 31)
	dates, err := GenerateInstallmentDates(start, TypeTrimestral, 6)
	require.NoError(t, err)
	for i, want := range dates {
		got, ok := OccurrenceAt(start, TypeTrimestral, i)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := OccurrenceAt(start, TypeUnica, 1)
	require.False(t, ok)
	_, ok = OccurrenceAt(start, TypeMensal, -1)
	require.False(t, ok)
}
