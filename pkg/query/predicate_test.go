package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontracts/corpuscore/pkg/dbconf"
	"github.com/opencontracts/corpuscore/pkg/model"
	"github.com/opencontracts/corpuscore/pkg/query"
	"github.com/opencontracts/corpuscore/pkg/store"
)

func TestPredicateAndOrCompose(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	require.NoError(t, s.DB.Create(&model.Corpus{Title: "A", Creator: "alice"}).Error)
	require.NoError(t, s.DB.Create(&model.Corpus{Title: "B", Creator: "bob"}).Error)
	require.NoError(t, s.DB.Create(&model.Corpus{Title: "C", Creator: "alice", IsPublic: true}).Error)

	var corpora []model.Corpus
	pred := query.And{
		query.Eq{Column: "creator", Value: "alice"},
	}
	err = query.Plan(s.DB.Model(&model.Corpus{}), pred).Find(&corpora).Error
	require.NoError(t, err)
	assert.Len(t, corpora, 2)

	var viaOr []model.Corpus
	orPred := query.Or{
		query.Eq{Column: "creator", Value: "bob"},
		query.Eq{Column: "is_public", Value: true},
	}
	err = query.Plan(s.DB.Model(&model.Corpus{}), orPred).Find(&viaOr).Error
	require.NoError(t, err)
	assert.Len(t, viaOr, 2)
}

func TestInPredicate(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	require.NoError(t, s.DB.Create(&model.Corpus{Title: "A", Creator: "alice"}).Error)
	require.NoError(t, s.DB.Create(&model.Corpus{Title: "B", Creator: "bob"}).Error)

	var corpora []model.Corpus
	pred := query.In{Column: "creator", Values: []any{"alice", "carol"}}
	err = query.Plan(s.DB.Model(&model.Corpus{}), pred).Find(&corpora).Error
	require.NoError(t, err)
	assert.Len(t, corpora, 1)
}
