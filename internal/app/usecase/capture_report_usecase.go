package usecase

import (
	"context"
	"fmt"
	"sync"

	walog "go.mau.fi/whatsmeow/util/log"

	"github.com/fardannozami/parking-reporter/internal/app/geo"
	"github.com/fardannozami/parking-reporter/internal/app/plate"
	"github.com/fardannozami/parking-reporter/internal/domain"
)

type Stage string

const (
	StageIdle              Stage = "idle"
	StageAcquiringLocation Stage = "acquiring_location"
	StageCapturingPhoto    Stage = "capturing_photo"
	StageExtractingPlate   Stage = "extracting_plate"
	StageUploadingPhoto    Stage = "uploading_photo"
	StageInsertingRow      Stage = "inserting_row"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

type ReportPhotoUploader interface {
	UploadReportPhoto(ctx context.Context, userID string, photo domain.Photo) (string, error)
}

type ReportInserter interface {
	InsertReport(ctx context.Context, report domain.NewReport) (*domain.Report, error)
}

type CaptureRequest struct {
	UserID      string
	Description string
	Locator     domain.Locator
	Camera      domain.Camera
	// OnStage observes stage transitions. Callers that outlive their UI wrap
	// it in their own liveness check.
	OnStage func(Stage)
}

// CaptureReportUsecase runs location → photo → OCR → upload → insert. Every
// stage but OCR aborts the whole capture; nothing is inserted unless all of
// them succeed. The new report reaches feeds only through the change stream.
type CaptureReportUsecase struct {
	repo     ReportInserter
	uploader ReportPhotoUploader
	ocr      domain.TextRecognizer
	log      walog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCaptureReportUsecase(repo ReportInserter, uploader ReportPhotoUploader, ocr domain.TextRecognizer, logger walog.Logger) *CaptureReportUsecase {
	if logger == nil {
		logger = walog.Noop
	}
	return &CaptureReportUsecase{
		repo:     repo,
		uploader: uploader,
		ocr:      ocr,
		log:      logger,
		inFlight: make(map[string]struct{}),
	}
}

func (uc *CaptureReportUsecase) Execute(ctx context.Context, req CaptureRequest) (*domain.Report, error) {
	if !uc.acquire(req.UserID) {
		return nil, domain.ErrCaptureInProgress
	}
	defer uc.release(req.UserID)

	notify := func(s Stage) {
		if req.OnStage != nil {
			req.OnStage(s)
		}
	}
	fail := func(err error) (*domain.Report, error) {
		notify(StageFailed)
		uc.log.Warnf("Capture for %s failed: %v", req.UserID, err)
		return nil, err
	}

	notify(StageIdle)

	notify(StageAcquiringLocation)
	pos, err := geo.NewGate(req.Locator).AcquireLocation(ctx)
	if err != nil {
		return fail(err)
	}

	notify(StageCapturingPhoto)
	if req.Camera == nil {
		return fail(fmt.Errorf("%w: no camera", domain.ErrCaptureFailed))
	}
	photo, err := req.Camera.Capture(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrCaptureFailed, err))
	}
	if len(photo.Data) == 0 {
		return fail(fmt.Errorf("%w: empty photo", domain.ErrCaptureFailed))
	}

	notify(StageExtractingPlate)
	licensePlate := uc.extractPlate(ctx, photo)

	notify(StageUploadingPhoto)
	photoURL, err := uc.uploader.UploadReportPhoto(ctx, req.UserID, photo)
	if err != nil {
		return fail(err)
	}

	notify(StageInsertingRow)
	report, err := uc.repo.InsertReport(ctx, domain.NewReport{
		UserID:       req.UserID,
		Description:  req.Description,
		LicensePlate: licensePlate,
		PhotoURL:     photoURL,
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
	})
	if err != nil {
		// The uploaded object is not cleaned up.
		uc.log.Warnf("Insert failed after upload, orphaned photo %s", photoURL)
		return fail(fmt.Errorf("%w: %w", domain.ErrInsertFailed, err))
	}

	notify(StageDone)
	uc.log.Infof("Report %s created by %s (plate %q)", report.ID, req.UserID, licensePlate)
	return report, nil
}

// extractPlate is best effort: any OCR failure yields an empty plate.
func (uc *CaptureReportUsecase) extractPlate(ctx context.Context, photo domain.Photo) string {
	if uc.ocr == nil {
		return ""
	}
	text, err := uc.ocr.RecognizeText(ctx, photo)
	if err != nil {
		uc.log.Warnf("OCR failed, continuing without plate: %v", err)
		return ""
	}
	p, ok := plate.Extract(text)
	if !ok {
		uc.log.Debugf("No plate in OCR text %q", text)
		return ""
	}
	return p
}

func (uc *CaptureReportUsecase) acquire(userID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, busy := uc.inFlight[userID]; busy {
		return false
	}
	uc.inFlight[userID] = struct{}{}
	return true
}

func (uc *CaptureReportUsecase) release(userID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.inFlight, userID)
}
