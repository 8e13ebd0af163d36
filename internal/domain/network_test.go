package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildSnapshot_Flatten(t *testing.T) {
	rows := []DescendantRow{
		{UserID: "b", ParentID: "a", Value: 10, Depth: 1},
		{UserID: "c", ParentID: "a", Value: 20, Depth: 1},
		{UserID: "d", ParentID: "b", Value: 10, Depth: 2},
		{UserID: "e", ParentID: "d", Value: 10, Depth: 3},
	}
	snap := BuildSnapshot("a", 10, rows, MaxGeneration, time.Unix(0, 0))

	want := []NetworkNode{
		{UserID: "b", Generation: 1, Value: 10},
		{UserID: "c", Generation: 1, Value: 20},
		{UserID: "d", Generation: 2, Value: 10},
		{UserID: "e", Generation: 3, Value: 10},
	}
	got := snap.Flatten(MaxGeneration)
	if len(got) != len(want) {
		t.Fatalf("Flatten() returned %d nodes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("node[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if n := len(snap.Flatten(1)); n != 2 {
		t.Errorf("Flatten(1) returned %d nodes, want 2", n)
	}
}

func TestBuildSnapshot_DropsBadRows(t *testing.T) {
	tests := []struct {
		name string
		rows []DescendantRow
		want int
	}{
		{
			name: "duplicate user",
			rows: []DescendantRow{
				{UserID: "b", ParentID: "a", Value: 1, Depth: 1},
				{UserID: "b", ParentID: "a", Value: 1, Depth: 1},
			},
			want: 1,
		},
		{
			name: "orphan",
			rows: []DescendantRow{{UserID: "x", ParentID: "nobody", Value: 1, Depth: 2}},
			want: 0,
		},
		{
			name: "deeper than max",
			rows: []DescendantRow{
				{UserID: "b", ParentID: "a", Value: 1, Depth: 1},
				{UserID: "deep", ParentID: "b", Value: 1, Depth: 6},
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := BuildSnapshot("a", 1, tt.rows, MaxGeneration, time.Now())
			if got := len(snap.Flatten(10)); got != tt.want {
				t.Errorf("Flatten() returned %d nodes, want %d", got, tt.want)
			}
		})
	}
}

func TestNetworkSnapshot_FlattenNil(t *testing.T) {
	var snap *NetworkSnapshot
	if got := snap.Flatten(MaxGeneration); got != nil {
		t.Errorf("Flatten() on nil = %v, want nil", got)
	}
}

func TestUser_RewardBasis(t *testing.T) {
	tests := []struct {
		name string
		user User
		want decimal.Decimal
	}{
		{name: "value when no investment", user: User{Value: 50}, want: decimal.NewFromInt(50)},
		{name: "investment when positive", user: User{Value: 50, Investment: decimal.NewFromInt(1200)}, want: decimal.NewFromInt(1200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.RewardBasis(); !got.Equal(tt.want) {
				t.Errorf("RewardBasis() = %s, want %s", got, tt.want)
			}
		})
	}
}
