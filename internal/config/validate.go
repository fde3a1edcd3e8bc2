package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("無効な設定値 %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}

	// カメラIDの重複チェック
	if c.Cameras[0].ID == c.Cameras[1].ID {
		return fmt.Errorf("カメラIDが重複しています: %s", c.Cameras[0].ID)
	}

	// 切り抜き領域は幅と高さが正であること
	if crop := c.CropOverride(); crop != nil {
		for i, r := range crop {
			if r.W <= 0 || r.H <= 0 {
				return fmt.Errorf("カメラ%dの切り抜き領域が空です: %+v", i+1, r)
			}
		}
	}

	return nil
}
