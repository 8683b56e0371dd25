package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		baseDir string
		storage *LocalStorage
	)

	BeforeEach(func() {
		baseDir = filepath.Join(GinkgoT().TempDir(), "receipts")
		var err error
		storage, err = NewLocalStorage(baseDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the base directory", func() {
		Expect(baseDir).To(BeADirectory())
	})

	Describe("Save", func() {
		var (
			filename string
			name     string
			err      error
		)

		BeforeEach(func() {
			filename = "fiscal_7Lv1Lwa4Gk2d.pdf"
		})

		JustBeforeEach(func() {
			name, err = storage.Save(filename, []byte("%PDF-1.4"))
		})

		It("writes the file and returns its name", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("fiscal_7Lv1Lwa4Gk2d.pdf"))
			Expect(filepath.Join(baseDir, name)).To(BeAnExistingFile())
		})

		When("the name escapes the directory", func() {
			BeforeEach(func() {
				filename = "../../photo.jpg"
			})

			It("keeps the file inside the base directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(name).To(Equal("photo.jpg"))
				Expect(filepath.Join(baseDir, "photo.jpg")).To(BeAnExistingFile())
				Expect(filepath.Join(filepath.Dir(baseDir), "photo.jpg")).NotTo(BeAnExistingFile())
			})
		})

		When("the name is empty", func() {
			BeforeEach(func() {
				filename = ""
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid file name")))
			})
		})
	})

	Describe("Get", func() {
		It("reads a saved file back", func() {
			_, err := storage.Save("id_receipt.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("id_receipt.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("jpeg bytes"))
		})

		It("fails for a missing file", func() {
			_, err := storage.Get("missing.jpg")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
		})

		It("does not read outside the base directory", func() {
			outside := filepath.Join(filepath.Dir(baseDir), "secret.txt")
			Expect(os.WriteFile(outside, []byte("secret"), 0644)).To(Succeed())

			_, err := storage.Get("../secret.txt")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes a saved file", func() {
			_, err := storage.Save("id_receipt.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("id_receipt.jpg")).To(Succeed())
			Expect(filepath.Join(baseDir, "id_receipt.jpg")).NotTo(BeAnExistingFile())
		})

		It("fails for a missing file", func() {
			Expect(storage.Delete("missing.jpg")).To(MatchError(ContainSubstring("deleting file")))
		})
	})
})
