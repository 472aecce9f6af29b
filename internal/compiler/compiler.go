// Package compiler turns tabular display-configuration rows into
// per-user, per-case configuration trees.
package compiler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/emiliopalmerini/caseconf/internal/domain"
)

// Row is one raw input row. Absent cells are empty strings.
type Row struct {
	User      string
	CaseNo    string
	Path      string
	Collapse  string
	Highlight string
	Top       string
}

type groupKey struct {
	userEmail string
	caseID    int64
}

// Compile groups rows by (user, case) in order of first occurrence and
// returns one configuration per group. The first invalid row aborts the
// whole compile and no configurations are returned.
func Compile(rows []Row) ([]domain.DisplayConfiguration, error) {
	groups := make(map[groupKey]*domain.DisplayConfiguration)
	order := make([]groupKey, 0)

	for i, row := range rows {
		lineNo := i + 1

		entry, key, err := compileRow(row)
		if err != nil {
			err.Row = lineNo
			return nil, err
		}

		cfg, ok := groups[key]
		if !ok {
			cfg = &domain.DisplayConfiguration{
				ID:         domain.DeriveConfigID(key.userEmail, key.caseID, domain.Tags{}),
				UserEmail:  key.userEmail,
				CaseID:     key.caseID,
				PathConfig: []domain.PathEntry{},
			}
			groups[key] = cfg
			order = append(order, key)
		}
		cfg.PathConfig = append(cfg.PathConfig, entry)
	}

	out := make([]domain.DisplayConfiguration, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

func compileRow(row Row) (domain.PathEntry, groupKey, *domain.Error) {
	user := strings.TrimSpace(row.User)
	if user == "" {
		return domain.PathEntry{}, groupKey{}, &domain.Error{
			Kind: domain.KindInvalidUserEmail, Message: domain.MsgInvalidUserEmail}
	}

	caseID, err := strconv.ParseInt(strings.TrimSpace(row.CaseNo), 10, 64)
	if err != nil {
		return domain.PathEntry{}, groupKey{}, &domain.Error{
			Kind: domain.KindInvalidCaseID, Message: domain.MsgInvalidCaseID, Err: err}
	}

	collapse, err := domain.ParseBoolCell(row.Collapse)
	if err != nil {
		return domain.PathEntry{}, groupKey{}, csvError(err)
	}
	highlight, err := domain.ParseBoolCell(row.Highlight)
	if err != nil {
		return domain.PathEntry{}, groupKey{}, csvError(err)
	}
	top, err := domain.ParseTopCell(row.Top)
	if err != nil {
		return domain.PathEntry{}, groupKey{}, csvError(err)
	}

	entry := domain.PathEntry{
		Path:  row.Path,
		Style: domain.PathStyle{Collapse: collapse, Highlight: highlight, Top: top},
	}
	if err := entry.Validate(); err != nil {
		return domain.PathEntry{}, groupKey{}, csvError(err)
	}

	return entry, groupKey{userEmail: user, caseID: caseID}, nil
}

func csvError(err error) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindInvalidCSV {
		cp := *de
		return &cp
	}
	return &domain.Error{Kind: domain.KindInvalidCSV, Message: domain.MsgInvalidCSV, Err: err}
}
