package safe

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ValidateFrame checks that a camera frame can be fed to the recognizer.
func ValidateFrame(mat gocv.Mat, operation string) error {
	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}

	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}

	switch mat.Channels() {
	case 1, 3, 4:
	default:
		return fmt.Errorf("Mat has %d channels for operation: %s", mat.Channels(), operation)
	}

	if mat.Type()&0x7 != gocv.MatTypeCV8U {
		return fmt.Errorf("Mat type %v is not 8-bit for operation: %s", mat.Type(), operation)
	}

	return nil
}
