package isolation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// Handler executes a decoded request inside the worker process.
type Handler func(ctx context.Context, req *WorkerRequest, img *models.Image) (*models.InferenceResult, error)

// Serve is the worker side of the exchange. It always tries to leave a response
// file behind and returns the process exit code: 0 for ok/empty, 1 for error.
func Serve(ctx context.Context, requestPath, responsePath string, handle Handler, logger logrus.FieldLogger) int {
	fail := func(err error) int {
		logger.WithError(err).Error("isolated request failed")
		if werr := WriteResponse(responsePath, &WorkerResponse{Status: StatusError, Message: err.Error()}); werr != nil {
			logger.WithError(werr).Error("could not write error response")
		}
		return 1
	}

	req, err := ReadRequest(requestPath)
	if err != nil {
		return fail(err)
	}

	var img *models.Image
	if req.Image != nil {
		img, err = ReadImage(req.Image)
		if err != nil {
			return fail(err)
		}
	}

	res, err := handle(ctx, req, img)
	if err != nil {
		return fail(err)
	}
	if res == nil || res.Status == models.StatusFailed {
		return fail(fmt.Errorf("%s pipeline produced no result", req.TaskType))
	}

	resp := ResponseFromResult(res)
	if err := WriteResponse(responsePath, resp); err != nil {
		logger.WithError(err).Error("could not write response")
		return 1
	}
	logger.WithFields(logrus.Fields{
		"task":       req.TaskType,
		"request_id": req.RequestID,
		"status":     resp.Status,
	}).Info("isolated request served")
	return 0
}
