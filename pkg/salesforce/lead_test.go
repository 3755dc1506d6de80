package salesforce

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLeadsByEmail(t *testing.T) {
	var gotSOQL string
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			gotSOQL = soql
			leads := out.(*[]Lead)
			*leads = []Lead{{ID: "00Q1", Email: "Info@Baeckerei-Sonne.de"}}
			return nil
		},
	}

	got, err := FindLeadsByEmail(context.Background(), mc, []string{"info@baeckerei-sonne.de", "o'brien@pub.ie"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"info@baeckerei-sonne.de": "00Q1"}, got)
	assert.Contains(t, gotSOQL, "FROM Lead WHERE Email IN ('info@baeckerei-sonne.de', 'o\\'brien@pub.ie')")
}

func TestFindLeadsByEmail_Batches(t *testing.T) {
	calls := 0
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, _ any) error {
			calls++
			assert.LessOrEqual(t, strings.Count(soql, "@"), maxBatchSize)
			return nil
		},
	}
	emails := make([]string, 450)
	for i := range emails {
		emails[i] = fmt.Sprintf("lead%d@example.de", i)
	}

	_, err := FindLeadsByEmail(context.Background(), mc, emails)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFindLeadsByEmail_Empty(t *testing.T) {
	mc := &mockClient{queryFn: func(context.Context, string, any) error {
		t.Fatal("query should not be called")
		return nil
	}}
	got, err := FindLeadsByEmail(context.Background(), mc, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindLeadsByEmail_Error(t *testing.T) {
	mc := &mockClient{queryFn: func(context.Context, string, any) error { return assert.AnError }}
	_, err := FindLeadsByEmail(context.Background(), mc, []string{"a@b.de"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: find leads by email")
}

func TestCreateLeads_Batches(t *testing.T) {
	var batchSizes []int
	mc := &mockClient{
		insertCollectionFn: func(_ context.Context, sObject string, records []map[string]any) ([]CollectionResult, error) {
			assert.Equal(t, "Lead", sObject)
			batchSizes = append(batchSizes, len(records))
			out := make([]CollectionResult, len(records))
			for i := range out {
				out[i] = CollectionResult{ID: "00Q", Success: true}
			}
			return out, nil
		},
	}
	records := make([]map[string]any, 250)
	for i := range records {
		records[i] = map[string]any{"Company": fmt.Sprintf("Firma %d", i), "LastName": "Unknown"}
	}

	results, err := CreateLeads(context.Background(), mc, records)
	require.NoError(t, err)
	assert.Len(t, results, 250)
	assert.Equal(t, []int{200, 50}, batchSizes)
}

func TestCreateLeads_PartialFailure(t *testing.T) {
	calls := 0
	mc := &mockClient{
		insertCollectionFn: func(_ context.Context, _ string, records []map[string]any) ([]CollectionResult, error) {
			calls++
			if calls == 2 {
				return nil, assert.AnError
			}
			return make([]CollectionResult, len(records)), nil
		},
	}
	records := make([]map[string]any, 201)
	for i := range records {
		records[i] = map[string]any{"Company": "X"}
	}

	results, err := CreateLeads(context.Background(), mc, records)
	require.Error(t, err)
	assert.Len(t, results, 200)
	assert.Contains(t, err.Error(), "batch 200-201")
}

func TestCreateLeads_RequiresCompany(t *testing.T) {
	_, err := CreateLeads(context.Background(), &mockClient{}, []map[string]any{{"LastName": "X"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Company is required")
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `o\'brien`, escapeSoql("o'brien"))
	assert.Equal(t, `a\\b`, escapeSoql(`a\b`))
	assert.Equal(t, "plain", escapeSoql("plain"))
}
