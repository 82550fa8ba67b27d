package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vidhub/apiserver/internal/media"
	"github.com/vidhub/apiserver/internal/services"
)

const (
	maxMultipartMemory   = 32 << 20
	maxUploadBytes       = 10 << 20
	maxRegisterBodyBytes = 2*maxUploadBytes + 1<<20
	maxJSONBodyBytes     = 1 << 20

	formFieldUsername   = "username"
	formFieldFullname   = "fullname"
	formFieldEmail      = "email"
	formFieldPassword   = "password"
	formFieldAvatar     = "avatar"
	formFieldCoverImage = "coverImage"
)

func parseRegisterForm(r *http.Request) (services.RegisterInput, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.RegisterInput{}, errors.New("invalid multipart form")
	}

	avatar, err := parseUploadFile(r.MultipartForm, formFieldAvatar)
	if err != nil {
		return services.RegisterInput{}, err
	}
	cover, err := parseUploadFile(r.MultipartForm, formFieldCoverImage)
	if err != nil {
		return services.RegisterInput{}, err
	}

	return services.RegisterInput{
		Username:   r.FormValue(formFieldUsername),
		Fullname:   r.FormValue(formFieldFullname),
		Email:      r.FormValue(formFieldEmail),
		Password:   r.FormValue(formFieldPassword),
		Avatar:     avatar,
		CoverImage: cover,
	}, nil
}

// parseUploadFile reads the single file submitted under field. A missing
// file yields nil so the caller decides whether it is required.
func parseUploadFile(form *multipart.Form, field string) (*media.File, error) {
	if form == nil {
		return nil, errors.New("missing form data")
	}

	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, fmt.Errorf("only one %s file is allowed", field)
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file", field)
	}

	data, err := readFileLimited(file, maxUploadBytes)
	_ = file.Close()
	if err != nil {
		return nil, err
	}

	return &media.File{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
