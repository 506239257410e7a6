package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/HybridInfer/src/logging"
	"www.github.com/Wanderer0074348/HybridInfer/src/mocks"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
	"www.github.com/Wanderer0074348/HybridInfer/src/services"
)

func setupTestHandler() (*InferenceHandler, *mocks.MockDispatcher, *mocks.MockStatusProvider) {
	gin.SetMode(gin.TestMode)

	dispatcher := new(mocks.MockDispatcher)
	statuses := new(mocks.MockStatusProvider)
	logger := logging.Discard()

	embeddings := services.NewEmbeddingService(dispatcher, nil, "test-model", logger, nil)
	handler := NewInferenceHandler(
		embeddings,
		services.NewClassificationService(embeddings, []string{"spam mail.", "company."}, logger),
		services.NewOCRService(dispatcher),
		services.NewDetectionService(dispatcher),
		statuses,
	)

	return handler, dispatcher, statuses
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestInferenceHandler_Embeddings(t *testing.T) {
	handler, dispatcher, _ := setupTestHandler()

	dispatcher.On("Infer", mock.Anything, mock.MatchedBy(func(req *models.InferenceRequest) bool {
		return req.Task == models.TaskEmbedding && len(req.Texts) == 2
	})).Return(&models.InferenceResult{
		Status:     models.StatusSuccess,
		Tier:       models.TierIsolatedAccelerator,
		Backend:    "isolated-embedding",
		Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
	}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/embeddings", EmbeddingRequest{Texts: []string{"hi", "there"}})

	handler.HandleEmbeddings(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response services.Embeddings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, models.StatusSuccess, response.Status)
	assert.Equal(t, "isolated_accelerator", response.Tier)
	assert.Len(t, response.Vectors, 2)

	dispatcher.AssertExpectations(t)
}

func TestInferenceHandler_EmbeddingsFailedIsStillOK(t *testing.T) {
	handler, dispatcher, _ := setupTestHandler()

	dispatcher.On("Infer", mock.Anything, mock.Anything).
		Return(&models.InferenceResult{Status: models.StatusFailed}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/embeddings", EmbeddingRequest{Texts: []string{"hi"}})

	handler.HandleEmbeddings(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "failed", response["status"])
}

func TestInferenceHandler_InvalidJSON(t *testing.T) {
	handler, _, _ := setupTestHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/embeddings", bytes.NewBufferString("{invalid json}"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.HandleEmbeddings(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInferenceHandler_Classify(t *testing.T) {
	handler, dispatcher, _ := setupTestHandler()

	dispatcher.On("Infer", mock.Anything, mock.Anything).Return(&models.InferenceResult{
		Status:     models.StatusSuccess,
		Backend:    "cpu",
		Embeddings: [][]float32{{1, 0}, {0, 1}, {1, 0.1}},
	}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/classify", ClassifyRequest{Text: "quarterly report"})

	handler.HandleClassify(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "company.", response["label"])
}

func TestInferenceHandler_ClassifyRequiresText(t *testing.T) {
	handler, _, _ := setupTestHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/classify", map[string]string{})

	handler.HandleClassify(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInferenceHandler_OCRMultipart(t *testing.T) {
	handler, dispatcher, _ := setupTestHandler()

	dispatcher.On("Infer", mock.Anything, mock.MatchedBy(func(req *models.InferenceRequest) bool {
		return req.Task == models.TaskSceneTextOCR && req.Image.Width == 8 && req.Image.Height == 6
	})).Return(&models.InferenceResult{
		Status:      models.StatusSuccess,
		Backend:     "npu-ocr",
		TextRegions: []models.TextRegion{{Text: "EXIT", Confidence: 0.9}},
	}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "sign.png")
	require.NoError(t, err)
	part.Write(pngBytes(t))
	mw.Close()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/ocr", &body)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())

	handler.HandleOCR(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response services.TextRegions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Regions, 1)
	assert.Equal(t, "EXIT", response.Regions[0].Text)
	dispatcher.AssertExpectations(t)
}

func TestInferenceHandler_DetectBase64(t *testing.T) {
	handler, dispatcher, _ := setupTestHandler()

	dispatcher.On("Infer", mock.Anything, mock.MatchedBy(func(req *models.InferenceRequest) bool {
		return req.Task == models.TaskObjectDetection
	})).Return(&models.InferenceResult{Status: models.StatusEmptyButValid, Backend: "cpu"}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/detect", ImageRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(pngBytes(t)),
	})

	handler.HandleDetect(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "empty", response["status"])
	assert.Equal(t, []interface{}{}, response["detections"])
}

func TestInferenceHandler_DetectRejectsGarbage(t *testing.T) {
	handler, dispatcher, _ := setupTestHandler()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest("POST", "/api/v1/detect", ImageRequest{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("definitely not a png")),
	})

	handler.HandleDetect(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	dispatcher.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything)
}

func TestInferenceHandler_ListBackendsAndHealth(t *testing.T) {
	handler, _, statuses := setupTestHandler()

	statuses.On("Statuses").Return([]models.BackendStatus{
		{Task: models.TaskEmbedding, TierName: "cpu_local_runtime", State: models.StateLoaded, Backend: "cpu"},
		{Task: models.TaskEmbedding, TierName: "remote_api", State: models.StateUnavailable},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/backends", nil)
	handler.ListBackends(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var listed map[string][]models.BackendStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed["backends"], 2)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/health", nil)
	handler.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["loaded_backends"])
}
