package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/jeswintom22/ClassSight/internal/domain"
)

// OCRService bọc AWS Rekognition DetectText thành OCR adapter cho pipeline.
// Đây là boundary duy nhất gọi engine OCR; pipeline chỉ biết contract
// ảnh -> văn bản + confidence.
type OCRService struct {
	rekognitionClient *rekognition.Client
}

func NewOCRService(rekClient *rekognition.Client) *OCRService {
	return &OCRService{rekognitionClient: rekClient}
}

// AnalyzeImage nhận frame dưới dạng bytes, gọi Rekognition và gom các dòng
// văn bản nhận dạng được. Frame không có chữ là kết quả hợp lệ (CombinedText
// rỗng), không phải lỗi — quyết định có gọi AI hay không là việc của pipeline.
func (s *OCRService) AnalyzeImage(ctx context.Context, frame []byte) (*domain.OCRObservation, error) {
	if s.rekognitionClient == nil {
		return nil, fmt.Errorf("Rekognition client chưa được khởi tạo")
	}

	input := &rekognition.DetectTextInput{
		Image: &types.Image{
			Bytes: frame,
		},
	}

	result, err := s.rekognitionClient.DetectText(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("lỗi Rekognition DetectText: %w", err)
	}

	var blocks []domain.TextBlock
	var lines []string
	var totalConfidence float64

	for _, textDetection := range result.TextDetections {
		// chỉ lấy LINE, WORD là thành phần con của LINE
		if textDetection.Type != types.TextTypesLine {
			continue
		}
		if textDetection.DetectedText == nil {
			continue
		}

		confidence := 0.0
		if textDetection.Confidence != nil {
			confidence = float64(*textDetection.Confidence) / 100.0 // Rekognition trả 0-100, chuẩn hoá về [0,1]
		}

		blocks = append(blocks, domain.TextBlock{
			Text:       *textDetection.DetectedText,
			Confidence: confidence,
		})
		lines = append(lines, *textDetection.DetectedText)
		totalConfidence += confidence
	}

	obs := &domain.OCRObservation{
		CombinedText: strings.Join(lines, "\n"),
		Blocks:       blocks,
	}
	if len(blocks) > 0 {
		obs.Confidence = totalConfidence / float64(len(blocks))
	}

	log.Printf("OCRService: Rekognition trả về %d dòng văn bản, confidence trung bình %.2f",
		len(blocks), obs.Confidence)
	return obs, nil
}
