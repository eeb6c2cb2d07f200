package moderation

import (
	"context"
	"errors"
	"testing"

	"issuesmap/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakeUsers []*models.User

func (f fakeUsers) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.New("not found")
}

func (f fakeUsers) FindUserByLogin(_ context.Context, login string) (*models.User, error) {
	for _, u := range f {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, errors.New("not found")
}

func (f fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	for _, x := range f {
		if x.ID == id {
			return x, nil
		}
	}
	return nil, errors.New("not found")
}

var users = fakeUsers{
	{ID: "42", Login: "ieva", Email: "ieva@example.com"},
	{ID: "7", Login: "janis", Email: "janis@example.com"},
	{ID: "9", Login: "mod@example.com", Email: "other@example.com"},
}

func TestResolveList(t *testing.T) {
	raw := "ieva@example.com (Ieva B)\r\n\n  janis  \nnobody@example.com\nieva\nghost (Ghost)\n"

	res := ResolveList(context.Background(), users, raw)

	assert.Equal(t, []string{"42", "7"}, res.IDs)
	assert.Equal(t, []string{"nobody@example.com", "ghost"}, res.Unmatched)
}

func TestResolveList_EmailBeforeLogin(t *testing.T) {
	res := ResolveList(context.Background(), users, "other@example.com")
	assert.Equal(t, []string{"9"}, res.IDs)

	// falls back to login when no email matches
	res = ResolveList(context.Background(), users, "mod@example.com")
	assert.Equal(t, []string{"9"}, res.IDs)
}

func TestResolveList_Empty(t *testing.T) {
	res := ResolveList(context.Background(), users, "\n  \n")
	assert.Empty(t, res.IDs)
	assert.Empty(t, res.Unmatched)

	res = ResolveList(context.Background(), nil, "ieva")
	assert.Equal(t, []string{"ieva"}, res.Unmatched)
}

func TestDirectory(t *testing.T) {
	d := NewDirectory([]string{"42", " ", "7", "42"})

	assert.True(t, d.IsModerator("42"))
	assert.True(t, d.IsModerator("7"))
	assert.False(t, d.IsModerator("8"))
	assert.False(t, d.IsModerator(""))
	assert.Equal(t, "42,7", d.Encode())

	d.Set(ParseIDs("9,,9, 10"))
	assert.Equal(t, []string{"9", "10"}, d.IDs())
	assert.False(t, d.IsModerator("42"))

	var nilDir *Directory
	assert.False(t, nilDir.IsModerator("42"))
}

func TestFormatList(t *testing.T) {
	ctx := context.Background()

	got := FormatList(ctx, users, []string{"42", "gone", "7"})
	assert.Equal(t, "ieva (ieva@example.com)\ngone\njanis (janis@example.com)", got)

	res := ResolveList(ctx, users, got)
	assert.Equal(t, []string{"42", "7"}, res.IDs)
	assert.Equal(t, []string{"gone"}, res.Unmatched)

	assert.Equal(t, "42\n7", FormatList(ctx, nil, []string{"42", "7"}))
}
