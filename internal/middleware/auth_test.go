package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/remix-engine/internal/i18n"
	"github.com/javajoker/remix-engine/internal/utils"
)

type AuthTestSuite struct {
	suite.Suite
	router *gin.Engine
	userID uuid.UUID
}

func (suite *AuthTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	require.NoError(suite.T(), i18n.Initialize("en"))
	utils.SetJWTSecret("middleware-test-secret")
	suite.userID = uuid.New()

	suite.router = gin.New()
	suite.router.Use(I18nMiddleware())

	whoami := func(c *gin.Context) {
		userID, _ := utils.GetUserIDFromContext(c)
		role, _ := utils.GetRoleFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role})
	}

	suite.router.GET("/private", AuthRequired(), whoami)
	suite.router.GET("/admin", AuthRequired(), AdminRequired(), whoami)
	suite.router.GET("/optional", OptionalAuth(), whoami)
}

func (suite *AuthTestSuite) get(path, authorization string) (int, map[string]interface{}) {
	req, _ := http.NewRequest("GET", path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(suite.T(), err)
	return w.Code, response
}

func (suite *AuthTestSuite) token(role string) string {
	token, err := utils.GenerateJWT(suite.userID, role, 1)
	require.NoError(suite.T(), err)
	return "Bearer " + token
}

func (suite *AuthTestSuite) TestAuthRequired() {
	code, response := suite.get("/private", "")
	assert.Equal(suite.T(), http.StatusUnauthorized, code)
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyAuthRequired), response["error"])

	code, response = suite.get("/private", "Token abc")
	assert.Equal(suite.T(), http.StatusUnauthorized, code)
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyAuthInvalidToken), response["error"])

	code, _ = suite.get("/private", "Bearer not.a.jwt")
	assert.Equal(suite.T(), http.StatusUnauthorized, code)

	code, response = suite.get("/private", suite.token(utils.RoleCreator))
	assert.Equal(suite.T(), http.StatusOK, code)
	assert.Equal(suite.T(), suite.userID.String(), response["user_id"])
	assert.Equal(suite.T(), utils.RoleCreator, response["role"])
}

func (suite *AuthTestSuite) TestExpiredToken() {
	token, err := utils.GenerateJWT(suite.userID, utils.RoleCreator, -1)
	require.NoError(suite.T(), err)

	code, response := suite.get("/private", "Bearer "+token)
	assert.Equal(suite.T(), http.StatusUnauthorized, code)
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyAuthTokenExpired), response["error"])
}

func (suite *AuthTestSuite) TestAdminRequired() {
	code, _ := suite.get("/admin", suite.token(utils.RoleCreator))
	assert.Equal(suite.T(), http.StatusForbidden, code)

	code, _ = suite.get("/admin", suite.token(utils.RoleService))
	assert.Equal(suite.T(), http.StatusForbidden, code)

	code, response := suite.get("/admin", suite.token(utils.RoleAdmin))
	assert.Equal(suite.T(), http.StatusOK, code)
	assert.Equal(suite.T(), utils.RoleAdmin, response["role"])
}

func (suite *AuthTestSuite) TestOptionalAuth() {
	code, response := suite.get("/optional", "")
	assert.Equal(suite.T(), http.StatusOK, code)
	assert.Equal(suite.T(), "", response["user_id"])

	code, response = suite.get("/optional", "Bearer garbage")
	assert.Equal(suite.T(), http.StatusOK, code)
	assert.Equal(suite.T(), "", response["user_id"])

	code, response = suite.get("/optional", suite.token(utils.RoleCreator))
	assert.Equal(suite.T(), http.StatusOK, code)
	assert.Equal(suite.T(), suite.userID.String(), response["user_id"])
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}
