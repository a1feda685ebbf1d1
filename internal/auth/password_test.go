package auth

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = ginkgo.Describe("PasswordHasher", func() {
	var hasher *PasswordHasher

	ginkgo.BeforeEach(func() {
		var err error
		hasher, err = NewPasswordHasher(bcrypt.MinCost)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	})

	ginkgo.It("hashes and verifies a password", func() {
		hash, err := hasher.Hash("SomeSecret42")

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(hash).ToNot(gomega.Equal("SomeSecret42"))
		gomega.Expect(hasher.Verify(hash, "SomeSecret42")).To(gomega.BeTrue())
		gomega.Expect(hasher.Verify(hash, "someSecret42")).To(gomega.BeFalse())
	})

	ginkgo.It("produces different hashes for the same password", func() {
		hash1, err := hasher.Hash("SamePassword1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		hash2, err := hasher.Hash("SamePassword1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		gomega.Expect(hash1).ToNot(gomega.Equal(hash2))
	})

	ginkgo.It("treats a corrupt hash as a non-match, not an error", func() {
		gomega.Expect(hasher.Verify("not-a-bcrypt-hash", "anything")).To(gomega.BeFalse())
		gomega.Expect(hasher.Verify("", "anything")).To(gomega.BeFalse())
	})

	ginkgo.It("clamps an out-of-range cost to the bcrypt default", func() {
		clamped, err := NewPasswordHasher(99)

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(clamped.cost).To(gomega.Equal(bcrypt.DefaultCost))
	})

	ginkgo.It("survives a dummy comparison without panicking", func() {
		hasher.DummyCompare("whatever")
	})
})

var _ = ginkgo.Describe("RegisterDTO", func() {
	ginkgo.It("passes with all required fields present", func() {
		dto := RegisterDTO{Email: "ok@example.com", Password: "Something9", Name: "Valid Name"}

		gomega.Expect(dto.Validate()).To(gomega.BeNil())
	})

	ginkgo.It("rejects a missing email", func() {
		dto := RegisterDTO{Password: "Something9", Name: "Valid Name"}

		err := dto.Validate()

		gomega.Expect(err).ToNot(gomega.BeNil())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("email is required"))
	})

	ginkgo.It("rejects a malformed email", func() {
		dto := RegisterDTO{Email: "not-an-email", Password: "Something9", Name: "Valid Name"}

		err := dto.Validate()

		gomega.Expect(err).ToNot(gomega.BeNil())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("valid email"))
	})

	ginkgo.It("lowercases email and role on normalize", func() {
		dto := RegisterDTO{Email: " User@Example.COM ", RoleName: " Operator "}

		dto.Normalize()

		gomega.Expect(dto.Email).To(gomega.Equal("user@example.com"))
		gomega.Expect(dto.RoleName).To(gomega.Equal("operator"))
	})
})

var _ = ginkgo.Describe("LoginDTO", func() {
	ginkgo.It("requires both email and password", func() {
		dto := LoginDTO{}

		err := dto.Validate()

		gomega.Expect(err).ToNot(gomega.BeNil())
		gomega.Expect(err.GetDetailedMessage()).To(gomega.ContainSubstring("email is required"))
		gomega.Expect(err.GetDetailedMessage()).To(gomega.ContainSubstring("password is required"))
	})
})

var _ = ginkgo.Describe("ChangePasswordDTO", func() {
	ginkgo.It("requires the current and the new password", func() {
		dto := ChangePasswordDTO{NewPassword: "NewEnough99"}

		err := dto.Validate()

		gomega.Expect(err).ToNot(gomega.BeNil())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("current_password is required"))
	})
})
