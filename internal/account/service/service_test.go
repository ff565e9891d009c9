package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"formalitys/internal/account/models"
	"formalitys/internal/account/service"
	"formalitys/internal/account/store"
	"formalitys/internal/jwttoken"
	dErrors "formalitys/pkg/domain-errors"
)

type AccountSuite struct {
	suite.Suite
	ctx    context.Context
	tokens *jwttoken.Service
	svc    *service.Service
}

func TestAccountSuite(t *testing.T) {
	suite.Run(t, new(AccountSuite))
}

func (s *AccountSuite) SetupTest() {
	s.ctx = context.Background()
	s.tokens = jwttoken.NewService("test-signing-key", "formalitys", "formalitys-api")
	s.svc = service.New(store.NewInMemory(), s.tokens)
}

func (s *AccountSuite) TestRegisterAndLogin() {
	user, err := s.svc.Register(s.ctx, "Fatima@Example.MA", "correct-horse-battery")
	s.Require().NoError(err)
	s.Equal("fatima@example.ma", user.Email)
	s.Equal(models.RoleOwner, user.Role)
	s.NotEqual("correct-horse-battery", user.PasswordHash)

	result, err := s.svc.Login(s.ctx, "fatima@example.ma", "correct-horse-battery")
	s.Require().NoError(err)
	s.Equal(user.ID, result.User.ID)

	claims, err := s.tokens.ValidateToken(result.Token)
	s.Require().NoError(err)
	s.Equal(user.ID.String(), claims.UserID)
	s.Equal(models.RoleOwner, claims.Role)
}

func (s *AccountSuite) TestRegisterRejectsShortPassword() {
	_, err := s.svc.Register(s.ctx, "fatima@example.ma", "short")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *AccountSuite) TestRegisterRejectsInvalidEmail() {
	_, err := s.svc.Register(s.ctx, "not-an-email", "correct-horse-battery")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *AccountSuite) TestRegisterDuplicateEmailConflicts() {
	_, err := s.svc.Register(s.ctx, "fatima@example.ma", "correct-horse-battery")
	s.Require().NoError(err)

	_, err = s.svc.Register(s.ctx, "FATIMA@example.ma", "another-password1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AccountSuite) TestLoginWrongPasswordIsUnauthorized() {
	_, err := s.svc.Register(s.ctx, "fatima@example.ma", "correct-horse-battery")
	s.Require().NoError(err)

	_, err = s.svc.Login(s.ctx, "fatima@example.ma", "wrong-password")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AccountSuite) TestLoginUnknownEmailIsUnauthorized() {
	_, err := s.svc.Login(s.ctx, "nobody@example.ma", "whatever-password")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AccountSuite) TestSeedAdminIsIdempotent() {
	s.Require().NoError(s.svc.SeedAdmin(s.ctx, "admin@formalitys.ma", "admin-password1"))
	s.Require().NoError(s.svc.SeedAdmin(s.ctx, "admin@formalitys.ma", "admin-password1"))

	result, err := s.svc.Login(s.ctx, "admin@formalitys.ma", "admin-password1")
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, result.User.Role)
}
