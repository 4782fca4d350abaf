package client

import (
	"fmt"
	"strconv"
	"time"

	"github.com/webissues/webissues-go/internal/codec"
	"github.com/webissues/webissues-go/internal/models"
	"github.com/webissues/webissues-go/internal/transport"
)

func singleRow(resp *transport.Response, tag string, arity int) ([]string, error) {
	if len(resp.Rows) != 1 || resp.Rows[0][0] != tag {
		return nil, fmt.Errorf("%w: expected one %s row", codec.ErrMalformed, tag)
	}
	row := resp.Rows[0]
	if len(row) < arity {
		return nil, fmt.Errorf("%w: %s row has %d fields, want %d", codec.ErrMalformed, tag, len(row), arity)
	}
	return row, nil
}

func field(row []string, i int) (string, error) {
	if i >= len(row) {
		return "", fmt.Errorf("%w: %s row is missing field %d", codec.ErrMalformed, row[0], i)
	}
	return row[i], nil
}

func atoi(row []string, i int) (int, error) {
	f, err := field(row, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %s row field %d: %q is not a number", codec.ErrMalformed, row[0], i, f)
	}
	return n, nil
}

func atoi64(row []string, i int) (int64, error) {
	f, err := field(row, i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(f, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s row field %d: %q is not a number", codec.ErrMalformed, row[0], i, f)
	}
	return n, nil
}

func dateAt(row []string, i int) (time.Time, error) {
	f, err := field(row, i)
	if err != nil {
		return time.Time{}, err
	}
	t, err := models.ParseDateTime(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s row field %d: %q is not a timestamp", codec.ErrMalformed, row[0], i, f)
	}
	return t, nil
}

// parseIssueRow decodes an issue header row:
// I <id> <folderId> '<name>' <stamp> <createdDate> <createdUser> <modifiedDate> <modifiedUser>
func parseIssueRow(row []string) (*models.Issue, error) {
	id, err := atoi(row, 1)
	if err != nil {
		return nil, err
	}
	folderID, err := atoi(row, 2)
	if err != nil {
		return nil, err
	}
	name, err := field(row, 3)
	if err != nil {
		return nil, err
	}
	stamp, err := atoi(row, 4)
	if err != nil {
		return nil, err
	}
	createdDate, err := dateAt(row, 5)
	if err != nil {
		return nil, err
	}
	createdUser, err := atoi(row, 6)
	if err != nil {
		return nil, err
	}
	modifiedDate, err := dateAt(row, 7)
	if err != nil {
		return nil, err
	}
	modifiedUser, err := atoi(row, 8)
	if err != nil {
		return nil, err
	}
	return &models.Issue{
		ID:           id,
		FolderID:     folderID,
		Name:         name,
		Stamp:        stamp,
		CreatedDate:  createdDate,
		CreatedUser:  createdUser,
		ModifiedDate: modifiedDate,
		ModifiedUser: modifiedUser,
	}, nil
}
