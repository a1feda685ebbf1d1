package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	internal "github.com/yatrisafe/tourist-safety/internal"
)

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	var gen *JWTTokenGenerator

	ginkgo.BeforeEach(func() {
		gen = NewJWTTokenGenerator("token-suite-secret", 15*time.Minute)
	})

	ginkgo.Describe("IssueAccessToken", func() {
		ginkgo.It("issues a token that validates back to the same claims", func() {
			token, expiresAt, err := gen.IssueAccessToken(42, "user@example.com", "operator", "sess-abc")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(token).ToNot(gomega.BeEmpty())
			gomega.Expect(expiresAt).To(gomega.BeTemporally("~", time.Now().Add(15*time.Minute), time.Minute))

			claims, err := gen.ValidateToken(token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("42"))
			gomega.Expect(claims.Email).To(gomega.Equal("user@example.com"))
			gomega.Expect(claims.Role).To(gomega.Equal("operator"))
			gomega.Expect(claims.SessionID).To(gomega.Equal("sess-abc"))
			gomega.Expect(claims.Subject).To(gomega.Equal("42"))
		})

		ginkgo.It("falls back to the default TTL when configured with zero", func() {
			zeroGen := NewJWTTokenGenerator("token-suite-secret", 0)

			_, expiresAt, err := zeroGen.IssueAccessToken(1, "a@b.c", "viewer", "sess-1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(expiresAt).To(gomega.BeTemporally("~", time.Now().Add(15*time.Minute), time.Minute))
		})
	})

	ginkgo.Describe("ValidateToken", func() {
		ginkgo.It("returns the expired error for an expired token", func() {
			expiredGen := NewJWTTokenGenerator("token-suite-secret", -time.Hour)
			token, _, err := expiredGen.IssueAccessToken(1, "a@b.c", "viewer", "sess-1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			claims, err := gen.ValidateToken(token)

			gomega.Expect(err).To(gomega.Equal(internal.ErrTokenExpired))
			gomega.Expect(claims).To(gomega.BeNil())
		})

		ginkgo.It("returns the malformed error for garbage input", func() {
			claims, err := gen.ValidateToken("this is not a jwt")

			gomega.Expect(err).To(gomega.Equal(internal.ErrTokenMalformed))
			gomega.Expect(claims).To(gomega.BeNil())
		})

		ginkgo.It("returns the invalid error for a token signed with another secret", func() {
			otherGen := NewJWTTokenGenerator("a-different-secret", 15*time.Minute)
			token, _, err := otherGen.IssueAccessToken(1, "a@b.c", "viewer", "sess-1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			claims, err := gen.ValidateToken(token)

			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
			gomega.Expect(claims).To(gomega.BeNil())
		})

		ginkgo.It("rejects a token without a session binding", func() {
			claims := &Claims{
				UserID: "7",
				Email:  "a@b.c",
				Role:   "viewer",
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "7",
					IssuedAt:  jwt.NewNumericDate(time.Now()),
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString([]byte("token-suite-secret"))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			parsed, err := gen.ValidateToken(signed)

			gomega.Expect(err).To(gomega.Equal(internal.ErrInvalidToken))
			gomega.Expect(parsed).To(gomega.BeNil())
		})

		ginkgo.It("rejects a token signed with an unexpected algorithm", func() {
			token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
				UserID:    "7",
				SessionID: "sess-1",
			})
			signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			parsed, err := gen.ValidateToken(signed)

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(parsed).To(gomega.BeNil())
		})
	})
})
